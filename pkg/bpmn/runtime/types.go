package runtime

import (
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model/bpmn20"
)

type ProcessDefinition struct {
	ProcessModelId string              `json:"processModelId"` // The ID as defined in the BPMN file
	Version        int32               `json:"version"`        // A version of the process, default=1, incremented, when another process with the same ID is loaded
	Hash           string              `json:"hash"`           // md5 of the raw source, identifies different versions
	BpmnData       string              `json:"bpmnData"`       // the raw source data
	ResourceName   string              `json:"resourceName,omitempty"`
	Definitions    bpmn20.TDefinitions `json:"definitions"` // parsed file content
	DeployedAt     time.Time           `json:"deployedAt"`
}

// Identity is the caller on whose behalf a process instance runs.
type Identity struct {
	UserId string   `json:"userId"`
	Token  string   `json:"token,omitempty"`
	Claims []string `json:"claims,omitempty"`
}

func (i Identity) HasClaim(claim string) bool {
	for _, c := range i.Claims {
		if c == claim {
			return true
		}
	}
	return false
}

type CorrelationState string

const (
	CorrelationRunning    CorrelationState = "running"
	CorrelationFinished   CorrelationState = "finished"
	CorrelationError      CorrelationState = "error"
	CorrelationTerminated CorrelationState = "terminated"
)

// Correlation links a process instance to its business correlation id and
// records the instance outcome.
type Correlation struct {
	ProcessInstanceId        string           `json:"processInstanceId"`
	CorrelationId            string           `json:"correlationId"`
	ProcessModelId           string           `json:"processModelId"`
	ProcessModelHash         string           `json:"processModelHash"`
	State                    CorrelationState `json:"state"`
	Identity                 Identity         `json:"identity"`
	ParentProcessInstanceId  string           `json:"parentProcessInstanceId,omitempty"`
	ParentFlowNodeInstanceId string           `json:"parentFlowNodeInstanceId,omitempty"`
	StartEventId             string           `json:"startEventId"`
	StartPayload             any              `json:"startPayload,omitempty"`
	Error                    *FlowNodeFailure `json:"error,omitempty"`
	CreatedAt                time.Time        `json:"createdAt"`
	FinishedAt               *time.Time       `json:"finishedAt,omitempty"`
}

func (c Correlation) IsNested() bool {
	return c.ParentProcessInstanceId != ""
}

type ExternalTaskState string

const (
	ExternalTaskPending  ExternalTaskState = "pending"
	ExternalTaskFinished ExternalTaskState = "finished"
)

// ExternalTask is a unit of work fetched and completed by an external worker.
type ExternalTask struct {
	Id                 string            `json:"id"`
	WorkerId           string            `json:"workerId,omitempty"`
	Topic              string            `json:"topic"`
	FlowNodeInstanceId string            `json:"flowNodeInstanceId"`
	CorrelationId      string            `json:"correlationId"`
	ProcessModelId     string            `json:"processModelId"`
	ProcessInstanceId  string            `json:"processInstanceId"`
	Payload            any               `json:"payload,omitempty"`
	LockExpirationTime *time.Time        `json:"lockExpirationTime,omitempty"`
	State              ExternalTaskState `json:"state"`
	FinishedAt         *time.Time        `json:"finishedAt,omitempty"`
	Result             any               `json:"result,omitempty"`
	Error              *FlowNodeFailure  `json:"error,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

func (t ExternalTask) IsLockedAt(now time.Time) bool {
	return t.LockExpirationTime != nil && t.LockExpirationTime.After(now)
}

type CronjobHistoryEntry struct {
	ProcessModelId    string    `json:"processModelId"`
	StartEventId      string    `json:"startEventId"`
	CrontabExpression string    `json:"crontabExpression"`
	ProcessInstanceId string    `json:"processInstanceId,omitempty"`
	CorrelationId     string    `json:"correlationId,omitempty"`
	ExecutedAt        time.Time `json:"executedAt"`
	Error             string    `json:"error,omitempty"`
}
