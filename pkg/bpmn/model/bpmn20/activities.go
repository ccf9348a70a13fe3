package bpmn20

import "github.com/pbinitiative/zenflow/pkg/bpmn/model/extensions"

const (
	ElementTypeTask         ElementType = "TASK"
	ElementTypeManualTask   ElementType = "MANUAL_TASK"
	ElementTypeUserTask     ElementType = "USER_TASK"
	ElementTypeScriptTask   ElementType = "SCRIPT_TASK"
	ElementTypeServiceTask  ElementType = "SERVICE_TASK"
	ElementTypeSendTask     ElementType = "SEND_TASK"
	ElementTypeReceiveTask  ElementType = "RECEIVE_TASK"
	ElementTypeSubProcess   ElementType = "SUB_PROCESS"
	ElementTypeCallActivity ElementType = "CALL_ACTIVITY"
	ElementTypeSequenceFlow ElementType = "SEQUENCE_FLOW"
)

// Activity is a flow node that can carry boundary events.
type Activity interface {
	FlowNode
	activity()
}

type TActivity struct {
	TFlowNode
	CompletionQuantity int  `xml:"completionQuantity,attr" json:"completionQuantity,omitempty"`
	IsForCompensation  bool `xml:"isForCompensation,attr" json:"isForCompensation,omitempty"`
	StartQuantity      int  `xml:"startQuantity,attr" json:"startQuantity,omitempty"`
}

func (TActivity) activity() {}

// TTask without a more specific type is an empty activity. It waits until it
// is finished through the engine API.
type TTask struct {
	TActivity
}

func (task TTask) GetType() ElementType { return ElementTypeTask }

type TManualTask struct {
	TTask
}

func (manualTask TManualTask) GetType() ElementType { return ElementTypeManualTask }

type TUserTask struct {
	TTask
	// BPMN 2.0 Unorthodox elements. Part of the extensions elements
	AssignmentDefinition extensions.TAssignmentDefinition `xml:"extensionElements>assignmentDefinition" json:"assignmentDefinition"`
}

func (userTask TUserTask) GetType() ElementType { return ElementTypeUserTask }

func (userTask TUserTask) GetAssignmentAssignee() string {
	return userTask.AssignmentDefinition.Assignee
}

func (userTask TUserTask) GetAssignmentCandidateGroups() []string {
	return userTask.AssignmentDefinition.GetCandidateGroups()
}

type TScriptTask struct {
	TTask
	ScriptFormat string `xml:"scriptFormat,attr" json:"scriptFormat,omitempty"`
	Script       string `xml:"script" json:"script"`
}

func (scriptTask TScriptTask) GetType() ElementType { return ElementTypeScriptTask }

type TServiceTask struct {
	TTask
	OperationRef   string `xml:"operationRef,attr" json:"operationRef,omitempty"`
	Implementation string `xml:"implementation,attr" json:"implementation,omitempty"`
	// BPMN 2.0 Unorthodox elements. Part of the extensions elements
	TaskDefinition extensions.TTaskDefinition `xml:"extensionElements>taskDefinition" json:"taskDefinition"`
}

func (serviceTask TServiceTask) GetType() ElementType { return ElementTypeServiceTask }

// GetTaskType returns the task definition type, which doubles as the external
// task topic.
func (serviceTask TServiceTask) GetTaskType() string {
	return serviceTask.TaskDefinition.TypeName
}

type TSendTask struct {
	TTask
	MessageRef string `xml:"messageRef,attr" json:"messageRef,omitempty"`
}

func (sendTask TSendTask) GetType() ElementType { return ElementTypeSendTask }

type TReceiveTask struct {
	TTask
	MessageRef string `xml:"messageRef,attr" json:"messageRef,omitempty"`
}

func (receiveTask TReceiveTask) GetType() ElementType { return ElementTypeReceiveTask }

type TSubProcess struct {
	TActivity
	TFlowElementsContainer
	TriggeredByEvent bool `xml:"triggeredByEvent,attr" json:"triggeredByEvent,omitempty"`
}

func (subProcess TSubProcess) GetType() ElementType { return ElementTypeSubProcess }

type TCallActivity struct {
	TActivity
	CalledElement string `xml:"calledElement,attr" json:"calledElement,omitempty"`
	// BPMN 2.0 Unorthodox elements. Part of the extensions elements
	CalledElementExtension extensions.TCalledElement `xml:"extensionElements>calledElement" json:"calledElementExtension"`
}

func (callActivity TCallActivity) GetType() ElementType { return ElementTypeCallActivity }

// GetCalledProcessId prefers the standard attribute over the extension element.
func (callActivity TCallActivity) GetCalledProcessId() string {
	if callActivity.CalledElement != "" {
		return callActivity.CalledElement
	}
	return callActivity.CalledElementExtension.ProcessId
}
