package js

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pbinitiative/zenflow/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T) *JsRuntime {
	r, err := NewJsRuntime(t.Context(), 2, 1)
	require.NoError(t, err)
	return r
}

func Test_run_script_returns_value(t *testing.T) {
	r := newRuntime(t)
	token := map[string]any{"current": map[string]any{"amount": 20}}

	result, ok, err := r.RunScript(t.Context(), "return token.current.amount * 2;", map[string]any{"token": token})

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 40, result)
}

func Test_run_script_undefined_result(t *testing.T) {
	r := newRuntime(t)

	result, ok, err := r.RunScript(t.Context(), "var x = 1;", nil)

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, result)
}

func Test_run_script_thrown_error_code(t *testing.T) {
	r := newRuntime(t)

	_, _, err := r.RunScript(t.Context(), `throw {errorCode: "E42", name: "invalid", message: "too big"};`, nil)

	var thrown *script.ThrownError
	require.ErrorAs(t, err, &thrown)
	assert.Equal(t, "E42", thrown.Code)
	assert.Equal(t, "invalid", thrown.Name)
	assert.Equal(t, "too big", thrown.Message)
}

func Test_run_script_plain_error(t *testing.T) {
	r := newRuntime(t)

	_, _, err := r.RunScript(t.Context(), `throw new Error("boom");`, nil)

	assert.ErrorContains(t, err, "boom")
	var thrown *script.ThrownError
	assert.False(t, errors.As(err, &thrown))
}

func Test_run_script_syntax_error(t *testing.T) {
	r := newRuntime(t)

	_, _, err := r.RunScript(t.Context(), "return (;", nil)

	assert.Error(t, err)
}

func Test_run_script_interrupted_by_context(t *testing.T) {
	r := newRuntime(t)
	cause := errors.New("terminated")
	ctx, cancel := context.WithCancelCause(t.Context())
	time.AfterFunc(50*time.Millisecond, func() { cancel(cause) })

	_, _, err := r.RunScript(ctx, "while (true) {}", nil)

	assert.ErrorIs(t, err, cause)

	// the runner is usable after an interrupt
	result, err := r.EvaluateExpression(t.Context(), "1 + 1", nil)
	assert.NoError(t, err)
	assert.EqualValues(t, 2, result)
}

func Test_evaluate_expression(t *testing.T) {
	r := newRuntime(t)

	result, err := r.EvaluateExpression(t.Context(), "token.current.ok === true", map[string]any{
		"token": map[string]any{"current": map[string]any{"ok": true}},
	})

	assert.NoError(t, err)
	assert.Equal(t, true, result)
}
