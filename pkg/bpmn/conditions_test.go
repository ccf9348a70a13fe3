package bpmn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
	"github.com/pbinitiative/zenflow/pkg/script/feel"
	"github.com/pbinitiative/zenflow/pkg/script/js"
)

func newTestEvaluator(t *testing.T) *expressionEvaluator {
	jsRuntime, err := js.NewJsRuntime(t.Context(), 2, 1)
	require.NoError(t, err)
	return newExpressionEvaluator(jsRuntime, feel.NewFeelRuntime())
}

func flow(id, condition string) *bpmn20.TSequenceFlow {
	f := &bpmn20.TSequenceFlow{}
	f.Id = id
	if condition != "" {
		f.ConditionExpression = &bpmn20.TExpression{Text: condition}
	}
	return f
}

func flowIds(flows []*bpmn20.TSequenceFlow) []string {
	ids := make([]string, 0, len(flows))
	for _, f := range flows {
		ids = append(ids, f.Id)
	}
	return ids
}

func priceScope(price int) map[string]any {
	return map[string]any{"price": price}
}

func Test_exclusive_gateway_with_expressions_selects_one_and_not_the_other(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price > 0"),
		flow("to-b", "price <= 0"),
	}

	// when
	selected, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "", priceScope(-50))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-b"}, flowIds(selected))
}

func Test_exclusive_gateway_takes_first_matching_flow_only(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price >= 0"),
		flow("to-b", "price == 0"),
	}

	// when
	selected, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "", priceScope(0))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-a"}, flowIds(selected))
}

func Test_exclusive_gateway_selects_default(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price > 0"),
		flow("to-default", ""),
	}

	// when
	selected, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "to-default", priceScope(-1))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-default"}, flowIds(selected))
}

func Test_exclusive_gateway_prefers_unconditional_flow_over_default(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-default", ""),
		flow("to-a", "price > 0"),
		flow("to-plain", ""),
	}

	// when
	selected, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "to-default", priceScope(-1))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-plain"}, flowIds(selected))
}

func Test_exclusive_gateway_without_match_and_default_fails(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price > 0"),
		flow("to-b", "price > 10"),
	}

	// when
	_, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "", priceScope(-1))

	// then
	var evalErr *ExpressionEvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Msg, "to-a")
}

func Test_exclusive_gateway_reports_broken_expression(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{flow("to-a", "price >")}

	// when
	_, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "", priceScope(1))

	// then
	var evalErr *ExpressionEvaluationError
	assert.ErrorAs(t, err, &evalErr)
}

func Test_exclusive_gateway_evaluates_feel_conditions(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "= price > 100"),
		flow("to-b", "= price <= 100"),
	}

	// when
	selected, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "", priceScope(150))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-a"}, flowIds(selected))
}

func Test_non_boolean_condition_is_false(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price"),
		flow("to-default", ""),
	}

	// when
	selected, err := exclusivelyFilterByConditionExpression(t.Context(), evaluator, flows, "to-default", priceScope(1))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-default"}, flowIds(selected))
}

func Test_inclusive_gateway_selects_every_matching_flow(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price > 0"),
		flow("to-b", "price > 10"),
		flow("to-c", "price > 100"),
		flow("to-plain", ""),
	}

	// when
	selected, err := inclusivelyFilterByConditionExpression(t.Context(), evaluator, "gateway", flows, "", priceScope(50))

	// then
	assert.NoError(t, err)
	assert.Equal(t, []string{"to-a", "to-b", "to-plain"}, flowIds(selected))
}

func Test_inclusive_gateway_uses_default_only_without_match(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{
		flow("to-a", "price > 0"),
		flow("to-default", ""),
	}

	// when
	matched, err := inclusivelyFilterByConditionExpression(t.Context(), evaluator, "gateway", flows, "to-default", priceScope(5))
	require.NoError(t, err)
	fallback, err := inclusivelyFilterByConditionExpression(t.Context(), evaluator, "gateway", flows, "to-default", priceScope(-5))
	require.NoError(t, err)

	// then
	assert.Equal(t, []string{"to-a"}, flowIds(matched))
	assert.Equal(t, []string{"to-default"}, flowIds(fallback))
}

func Test_inclusive_gateway_without_match_and_default_fails(t *testing.T) {
	evaluator := newTestEvaluator(t)

	// given
	flows := []*bpmn20.TSequenceFlow{flow("to-a", "price > 0")}

	// when
	_, err := inclusivelyFilterByConditionExpression(t.Context(), evaluator, "gateway", flows, "", priceScope(-5))

	// then
	var evalErr *ExpressionEvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Contains(t, evalErr.Msg, "gateway")
}
