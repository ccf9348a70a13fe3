package appcontext

import (
	"context"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

type EXECUTION_CONTEXT string

var (
	IdentityKey          EXECUTION_CONTEXT = "identity"
	ProcessInstanceIdKey EXECUTION_CONTEXT = "processInstanceId"
)

func WithIdentity(ctx context.Context, identity runtime.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// Identity returns the caller identity stored by WithIdentity.
func Identity(ctx context.Context) (runtime.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(runtime.Identity)
	return identity, ok
}

func WithProcessInstanceId(ctx context.Context, processInstanceId string) context.Context {
	return context.WithValue(ctx, ProcessInstanceIdKey, processInstanceId)
}

func ProcessInstanceId(ctx context.Context) (string, bool) {
	processInstanceId, ok := ctx.Value(ProcessInstanceIdKey).(string)
	return processInstanceId, ok && processInstanceId != ""
}
