package runtime

import (
	"slices"
	"time"
)

type FlowNodeInstanceState string

const (
	FlowNodeRunning    FlowNodeInstanceState = "running"
	FlowNodeSuspended  FlowNodeInstanceState = "suspended"
	FlowNodeFinished   FlowNodeInstanceState = "finished"
	FlowNodeError      FlowNodeInstanceState = "error"
	FlowNodeTerminated FlowNodeInstanceState = "terminated"
)

// IsTerminal reports whether no further transition is allowed from the state.
func (s FlowNodeInstanceState) IsTerminal() bool {
	return s == FlowNodeFinished || s == FlowNodeError || s == FlowNodeTerminated
}

type FlowNodeTokenType string

const (
	TokenOnEnter   FlowNodeTokenType = "onEnter"
	TokenOnSuspend FlowNodeTokenType = "onSuspend"
	TokenOnResume  FlowNodeTokenType = "onResume"
	TokenOnExit    FlowNodeTokenType = "onExit"
)

type FlowNodeToken struct {
	Type      FlowNodeTokenType `json:"type"`
	Payload   any               `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

type ErrorKind string

const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindBusiness       ErrorKind = "business"
	ErrorKindTermination    ErrorKind = "termination"
	ErrorKindInfrastructure ErrorKind = "infrastructure"
)

// FlowNodeFailure is the persisted form of an error that ended a flow node
// instance, a correlation or an external task.
type FlowNodeFailure struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Name    string    `json:"name,omitempty"`
	Message string    `json:"message"`
}

// FlowNodeInstance is the durable record of one execution of a flow node.
type FlowNodeInstance struct {
	Id                          string                `json:"id"`
	FlowNodeId                  string                `json:"flowNodeId"`
	FlowNodeType                string                `json:"flowNodeType"`
	FlowNodeLane                string                `json:"flowNodeLane,omitempty"`
	State                       FlowNodeInstanceState `json:"state"`
	Tokens                      []FlowNodeToken       `json:"tokens"`
	PreviousFlowNodeInstanceIds []string              `json:"previousFlowNodeInstanceIds,omitempty"`
	NextFlowNodeIds             []string              `json:"nextFlowNodeIds,omitempty"`
	CorrelationId               string                `json:"correlationId"`
	ProcessModelId              string                `json:"processModelId"`
	ProcessInstanceId           string                `json:"processInstanceId"`
	Error                       *FlowNodeFailure      `json:"error,omitempty"`
	CreatedAt                   time.Time             `json:"createdAt"`
	UpdatedAt                   time.Time             `json:"updatedAt"`
}

// GetToken returns the latest token of the given type, nil when none was recorded.
func (i FlowNodeInstance) GetToken(tokenType FlowNodeTokenType) *FlowNodeToken {
	for idx := len(i.Tokens) - 1; idx >= 0; idx-- {
		if i.Tokens[idx].Type == tokenType {
			token := i.Tokens[idx]
			return &token
		}
	}
	return nil
}

// GetLastToken returns the most recently recorded token regardless of its type.
func (i FlowNodeInstance) GetLastToken() *FlowNodeToken {
	if len(i.Tokens) == 0 {
		return nil
	}
	token := i.Tokens[len(i.Tokens)-1]
	return &token
}

func (i FlowNodeInstance) HasPredecessor(flowNodeInstanceId string) bool {
	return slices.Contains(i.PreviousFlowNodeInstanceIds, flowNodeInstanceId)
}

func (i FlowNodeInstance) IsActive() bool {
	return i.State == FlowNodeRunning || i.State == FlowNodeSuspended
}
