package bpmn20

type TFlowElementsContainer struct {
	StartEvents             []TStartEvent             `xml:"startEvent" json:"startEvents,omitempty"`
	EndEvents               []TEndEvent               `xml:"endEvent" json:"endEvents,omitempty"`
	IntermediateCatchEvents []TIntermediateCatchEvent `xml:"intermediateCatchEvent" json:"intermediateCatchEvents,omitempty"`
	IntermediateThrowEvents []TIntermediateThrowEvent `xml:"intermediateThrowEvent" json:"intermediateThrowEvents,omitempty"`
	BoundaryEvents          []TBoundaryEvent          `xml:"boundaryEvent" json:"boundaryEvents,omitempty"`
	Tasks                   []TTask                   `xml:"task" json:"tasks,omitempty"`
	ManualTasks             []TManualTask             `xml:"manualTask" json:"manualTasks,omitempty"`
	UserTasks               []TUserTask               `xml:"userTask" json:"userTasks,omitempty"`
	ScriptTasks             []TScriptTask             `xml:"scriptTask" json:"scriptTasks,omitempty"`
	ServiceTasks            []TServiceTask            `xml:"serviceTask" json:"serviceTasks,omitempty"`
	SendTasks               []TSendTask               `xml:"sendTask" json:"sendTasks,omitempty"`
	ReceiveTasks            []TReceiveTask            `xml:"receiveTask" json:"receiveTasks,omitempty"`
	SubProcesses            []TSubProcess             `xml:"subProcess" json:"subProcesses,omitempty"`
	CallActivities          []TCallActivity           `xml:"callActivity" json:"callActivities,omitempty"`
	ExclusiveGateways       []TExclusiveGateway       `xml:"exclusiveGateway" json:"exclusiveGateways,omitempty"`
	ParallelGateways        []TParallelGateway        `xml:"parallelGateway" json:"parallelGateways,omitempty"`
	InclusiveGateways       []TInclusiveGateway       `xml:"inclusiveGateway" json:"inclusiveGateways,omitempty"`
	ComplexGateways         []TComplexGateway         `xml:"complexGateway" json:"complexGateways,omitempty"`
	SequenceFlows           []TSequenceFlow           `xml:"sequenceFlow" json:"sequenceFlows,omitempty"`
	LaneSets                []TLaneSet                `xml:"laneSet" json:"laneSets,omitempty"`
}

// allFlowNodes returns pointers into the container's slices, so the container
// must not be appended to while they are in use.
func (c *TFlowElementsContainer) allFlowNodes() []FlowNode {
	var nodes []FlowNode
	for i := range c.StartEvents {
		nodes = append(nodes, &c.StartEvents[i])
	}
	for i := range c.EndEvents {
		nodes = append(nodes, &c.EndEvents[i])
	}
	for i := range c.IntermediateCatchEvents {
		nodes = append(nodes, &c.IntermediateCatchEvents[i])
	}
	for i := range c.IntermediateThrowEvents {
		nodes = append(nodes, &c.IntermediateThrowEvents[i])
	}
	for i := range c.BoundaryEvents {
		nodes = append(nodes, &c.BoundaryEvents[i])
	}
	for i := range c.Tasks {
		nodes = append(nodes, &c.Tasks[i])
	}
	for i := range c.ManualTasks {
		nodes = append(nodes, &c.ManualTasks[i])
	}
	for i := range c.UserTasks {
		nodes = append(nodes, &c.UserTasks[i])
	}
	for i := range c.ScriptTasks {
		nodes = append(nodes, &c.ScriptTasks[i])
	}
	for i := range c.ServiceTasks {
		nodes = append(nodes, &c.ServiceTasks[i])
	}
	for i := range c.SendTasks {
		nodes = append(nodes, &c.SendTasks[i])
	}
	for i := range c.ReceiveTasks {
		nodes = append(nodes, &c.ReceiveTasks[i])
	}
	for i := range c.SubProcesses {
		nodes = append(nodes, &c.SubProcesses[i])
	}
	for i := range c.CallActivities {
		nodes = append(nodes, &c.CallActivities[i])
	}
	for i := range c.ExclusiveGateways {
		nodes = append(nodes, &c.ExclusiveGateways[i])
	}
	for i := range c.ParallelGateways {
		nodes = append(nodes, &c.ParallelGateways[i])
	}
	for i := range c.InclusiveGateways {
		nodes = append(nodes, &c.InclusiveGateways[i])
	}
	for i := range c.ComplexGateways {
		nodes = append(nodes, &c.ComplexGateways[i])
	}
	return nodes
}

type TProcess struct {
	TCallableElement
	TFlowElementsContainer
	ProcessType                  string `xml:"processType,attr" json:"processType,omitempty"`
	IsClosed                     bool   `xml:"isClosed,attr" json:"isClosed,omitempty"`
	IsExecutable                 bool   `xml:"isExecutable,attr" json:"isExecutable"`
	DefinitionalCollaborationRef string `xml:"definitionalCollaborationRef,attr" json:"definitionalCollaborationRef,omitempty"`
}

type TLaneSet struct {
	Id    string  `xml:"id,attr" json:"id,omitempty"`
	Lanes []TLane `xml:"lane" json:"lanes,omitempty"`
}

type TLane struct {
	Id           string    `xml:"id,attr" json:"id"`
	Name         string    `xml:"name,attr" json:"name"`
	FlowNodeRefs []string  `xml:"flowNodeRef" json:"flowNodeRefs,omitempty"`
	ChildLaneSet *TLaneSet `xml:"childLaneSet" json:"childLaneSet,omitempty"`
}
