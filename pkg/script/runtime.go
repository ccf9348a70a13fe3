package script

import (
	"context"
	"fmt"
)

type FeelRuntime interface {
	UnaryTest(expression string, variableContext map[string]any) (bool, error)
	Evaluate(expression string, variableContext map[string]any) (any, error)
}

type JsRuntime interface {
	// RunScript runs script as the body of a function whose parameters are
	// the keys of variables. The function's return value is the result;
	// undefined is reported as nil with ok false.
	RunScript(ctx context.Context, script string, variables map[string]any) (result any, ok bool, err error)
	// EvaluateExpression returns the value of a single JS expression.
	EvaluateExpression(ctx context.Context, expression string, variables map[string]any) (any, error)
}

// ThrownError is raised when a script throws an object carrying an
// errorCode, so callers can route it to error boundaries.
type ThrownError struct {
	Code    string
	Name    string
	Message string
}

func (e *ThrownError) Error() string {
	return fmt.Sprintf("script threw error %s: %s", e.Code, e.Message)
}
