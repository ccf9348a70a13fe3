package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_get_token_returns_latest_of_type(t *testing.T) {
	instance := FlowNodeInstance{Tokens: []FlowNodeToken{
		{Type: TokenOnEnter, Payload: 1},
		{Type: TokenOnSuspend, Payload: 2},
		{Type: TokenOnEnter, Payload: 3},
	}}

	assert.Equal(t, 3, instance.GetToken(TokenOnEnter).Payload)
	assert.Equal(t, 2, instance.GetToken(TokenOnSuspend).Payload)
	assert.Nil(t, instance.GetToken(TokenOnExit))
	assert.Equal(t, 3, instance.GetLastToken().Payload)
}

func Test_state_terminal(t *testing.T) {
	assert.False(t, FlowNodeRunning.IsTerminal())
	assert.False(t, FlowNodeSuspended.IsTerminal())
	assert.True(t, FlowNodeFinished.IsTerminal())
	assert.True(t, FlowNodeError.IsTerminal())
	assert.True(t, FlowNodeTerminated.IsTerminal())
}

func Test_has_predecessor(t *testing.T) {
	instance := FlowNodeInstance{PreviousFlowNodeInstanceIds: []string{"a;b", "c"}}

	assert.True(t, instance.HasPredecessor("a;b"))
	assert.True(t, instance.HasPredecessor("c"))
	assert.False(t, instance.HasPredecessor("a"))
}
