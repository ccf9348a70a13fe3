package bpmn

import (
	"context"
	"fmt"
	"strings"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/script"
)

// expressionEvaluator picks the language by prefix: "=" is FEEL, anything
// else is a JavaScript expression.
type expressionEvaluator struct {
	js   script.JsRuntime
	feel script.FeelRuntime
}

func newExpressionEvaluator(js script.JsRuntime, feel script.FeelRuntime) *expressionEvaluator {
	return &expressionEvaluator{js: js, feel: feel}
}

func expressionScope(tokenFacade *runtime.TokenFacade, identity runtime.Identity) map[string]any {
	return map[string]any{
		"token":    tokenFacade.GetOldTokenFormat(),
		"identity": identityScope(identity),
	}
}

// identityScope exposes the identity under its JSON field names.
func identityScope(identity runtime.Identity) map[string]any {
	claims := make([]any, 0, len(identity.Claims))
	for _, claim := range identity.Claims {
		claims = append(claims, claim)
	}
	return map[string]any{
		"userId": identity.UserId,
		"token":  identity.Token,
		"claims": claims,
	}
}

func (e *expressionEvaluator) evaluate(ctx context.Context, expression string, scope map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)
	if strings.HasPrefix(expression, "=") {
		res, err := e.feel.Evaluate(expression, scope)
		if err != nil {
			return nil, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate FEEL expression %s", expression), Err: err}
		}
		return res, nil
	}
	res, err := e.js.EvaluateExpression(ctx, expression, scope)
	if err != nil {
		return nil, &ExpressionEvaluationError{Msg: fmt.Sprintf("failed to evaluate expression %s", expression), Err: err}
	}
	return res, nil
}

// evaluateCondition is true only when the expression yields the boolean true.
func (e *expressionEvaluator) evaluateCondition(ctx context.Context, expression string, scope map[string]any) (bool, error) {
	res, err := e.evaluate(ctx, expression, scope)
	if err != nil {
		return false, err
	}
	ok, isBool := res.(bool)
	return isBool && ok, nil
}

// timerEvaluator resolves "=" timer values against the branch history.
func (e *expressionEvaluator) timerEvaluator(ctx context.Context, tokenFacade *runtime.TokenFacade, identity runtime.Identity) func(string) (any, error) {
	return func(expression string) (any, error) {
		return e.evaluate(ctx, expression, expressionScope(tokenFacade, identity))
	}
}
