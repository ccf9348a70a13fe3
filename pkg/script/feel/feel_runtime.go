package feel

import (
	"fmt"
	"strings"

	"github.com/pbinitiative/feel"
	"github.com/pbinitiative/zenflow/pkg/script"
)

// FeelRuntime evaluates FEEL expressions. A leading "=" marks an expression
// in BPMN attributes and is stripped before evaluation.
type FeelRuntime struct {
}

var _ script.FeelRuntime = &FeelRuntime{}

func NewFeelRuntime() *FeelRuntime {
	return &FeelRuntime{}
}

func (r *FeelRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	expression = strings.TrimPrefix(strings.TrimSpace(expression), "=")
	if variableContext == nil {
		variableContext = map[string]any{}
	}
	result, err := feel.EvalStringWithScope(expression, variableContext)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate FEEL expression %q: %w", expression, err)
	}
	return result, nil
}

func (r *FeelRuntime) UnaryTest(expression string, variableContext map[string]any) (bool, error) {
	result, err := r.Evaluate(expression, variableContext)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("FEEL expression %q did not evaluate to a boolean: %v", expression, result)
	}
	return b, nil
}
