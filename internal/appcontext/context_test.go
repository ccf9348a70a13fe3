package appcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

func Test_identity(t *testing.T) {
	identity := runtime.Identity{UserId: "alice", Claims: []string{"reviewers"}}
	ctx := WithIdentity(context.Background(), identity)

	valFromCtx, found := Identity(ctx)
	assert.True(t, found)
	assert.Equal(t, identity, valFromCtx)

	valFromCtx, found = Identity(context.Background())
	assert.False(t, found)
	assert.Equal(t, runtime.Identity{}, valFromCtx)
}

func Test_process_instance_id(t *testing.T) {
	ctx := WithProcessInstanceId(context.Background(), "pi-1")

	valFromCtx, found := ProcessInstanceId(ctx)
	assert.True(t, found)
	assert.Equal(t, "pi-1", valFromCtx)

	_, found = ProcessInstanceId(WithProcessInstanceId(context.Background(), ""))
	assert.False(t, found)
}
