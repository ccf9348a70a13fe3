package rest

import (
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

type ProcessDefinitionSimple struct {
	ProcessModelId string    `json:"processModelId"`
	Version        int32     `json:"version"`
	Hash           string    `json:"hash"`
	ResourceName   string    `json:"resourceName,omitempty"`
	DeployedAt     time.Time `json:"deployedAt"`
}

type ProcessDefinitionDetail struct {
	ProcessDefinitionSimple
	BpmnData string `json:"bpmnData"`
}

func toProcessDefinitionSimple(definition runtime.ProcessDefinition) ProcessDefinitionSimple {
	return ProcessDefinitionSimple{
		ProcessModelId: definition.ProcessModelId,
		Version:        definition.Version,
		Hash:           definition.Hash,
		ResourceName:   definition.ResourceName,
		DeployedAt:     definition.DeployedAt,
	}
}

type Cronjob struct {
	ProcessModelId string `json:"processModelId"`
	StartEventId   string `json:"startEventId"`
	Expression     string `json:"expression"`
}

type StartProcessInstance struct {
	ProcessModelId string `json:"processModelId"`
	StartEventId   string `json:"startEventId,omitempty"`
	CorrelationId  string `json:"correlationId,omitempty"`
	Payload        any    `json:"payload,omitempty"`
	// AwaitEndEvent blocks the request until an end event, or EndEventId when
	// set, is reached.
	AwaitEndEvent bool   `json:"awaitEndEvent,omitempty"`
	EndEventId    string `json:"endEventId,omitempty"`
}

type ProcessInstanceStarted struct {
	CorrelationId     string `json:"correlationId"`
	ProcessInstanceId string `json:"processInstanceId"`
	ProcessModelId    string `json:"processModelId"`
}

type EndEventReached struct {
	ProcessInstanceStarted
	EndEventId string `json:"endEventId"`
	Payload    any    `json:"payload,omitempty"`
}

func toEndEventReached(message bpmn.EndEventReachedMessage) EndEventReached {
	return EndEventReached{
		ProcessInstanceStarted: ProcessInstanceStarted{
			CorrelationId:     message.CorrelationId,
			ProcessInstanceId: message.ProcessInstanceId,
			ProcessModelId:    message.ProcessModelId,
		},
		EndEventId: message.EndEventId,
		Payload:    message.Payload,
	}
}

type Terminate struct {
	Reason string `json:"reason"`
}

type Payload struct {
	Payload any `json:"payload"`
}

type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

type Delivered struct {
	Delivered int `json:"delivered"`
}

type FetchAndLock struct {
	WorkerId       string `json:"workerId"`
	Topic          string `json:"topic"`
	MaxTasks       *int   `json:"maxTasks,omitempty"`
	LockDurationMs *int64 `json:"lockDurationMs,omitempty"`
}

type WorkerAction struct {
	WorkerId       string `json:"workerId"`
	LockDurationMs *int64 `json:"lockDurationMs,omitempty"`
	Result         any    `json:"result,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	Message        string `json:"message,omitempty"`
}

type Status struct {
	Name                    string `json:"name"`
	RunningProcessInstances int    `json:"runningProcessInstances"`
	ScheduledCronjobs       int    `json:"scheduledCronjobs"`
	DeployedProcessModels   int    `json:"deployedProcessModels"`
}
