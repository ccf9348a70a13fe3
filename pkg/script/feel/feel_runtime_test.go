package feel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_unary_test(t *testing.T) {
	r := NewFeelRuntime()

	ok, err := r.UnaryTest("= 1 < 2", nil)

	assert.NoError(t, err)
	assert.True(t, ok)
}

func Test_unary_test_requires_boolean(t *testing.T) {
	r := NewFeelRuntime()

	_, err := r.UnaryTest(`= "text"`, nil)

	assert.Error(t, err)
}

func Test_evaluate_string(t *testing.T) {
	r := NewFeelRuntime()

	result, err := r.Evaluate(`= "PT10S"`, map[string]any{})

	assert.NoError(t, err)
	assert.Equal(t, "PT10S", result)
}
