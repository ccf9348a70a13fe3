package bpmn20

import (
	"strings"
	"sync"
)

// ProcessModelFacade is a read-only navigation index over one flow elements
// container: the process itself or one of its sub-processes.
type ProcessModelFacade struct {
	definitions  *TDefinitions
	processId    string
	container    *TFlowElementsContainer
	isExecutable bool
	parent       *ProcessModelFacade

	nodes      map[string]FlowNode
	flows      map[string]*TSequenceFlow
	outgoing   map[string][]*TSequenceFlow
	incoming   map[string][]*TSequenceFlow
	boundaries map[string][]*TBoundaryEvent
	lanes      map[string]string

	subFacadesMu sync.Mutex
	subFacades   map[string]*ProcessModelFacade
}

func NewProcessModelFacade(definitions *TDefinitions) *ProcessModelFacade {
	process := &definitions.Process
	return newContainerFacade(definitions, process.Id, &process.TFlowElementsContainer, process.IsExecutable, nil, "")
}

func newContainerFacade(definitions *TDefinitions, processId string, container *TFlowElementsContainer, executable bool, parent *ProcessModelFacade, inheritedLane string) *ProcessModelFacade {
	f := &ProcessModelFacade{
		definitions:  definitions,
		processId:    processId,
		container:    container,
		isExecutable: executable,
		parent:       parent,
		nodes:        map[string]FlowNode{},
		flows:        map[string]*TSequenceFlow{},
		outgoing:     map[string][]*TSequenceFlow{},
		incoming:     map[string][]*TSequenceFlow{},
		boundaries:   map[string][]*TBoundaryEvent{},
		lanes:        map[string]string{},
		subFacades:   map[string]*ProcessModelFacade{},
	}
	for _, node := range container.allFlowNodes() {
		f.nodes[node.GetId()] = node
		if inheritedLane != "" {
			f.lanes[node.GetId()] = inheritedLane
		}
	}
	for i := range container.SequenceFlows {
		flow := &container.SequenceFlows[i]
		f.flows[flow.Id] = flow
		f.outgoing[flow.SourceRef] = append(f.outgoing[flow.SourceRef], flow)
		f.incoming[flow.TargetRef] = append(f.incoming[flow.TargetRef], flow)
	}
	for i := range container.BoundaryEvents {
		boundary := &container.BoundaryEvents[i]
		f.boundaries[boundary.AttachedToRef] = append(f.boundaries[boundary.AttachedToRef], boundary)
	}
	for _, laneSet := range container.LaneSets {
		f.indexLanes(laneSet)
	}
	return f
}

func (f *ProcessModelFacade) indexLanes(laneSet TLaneSet) {
	for _, lane := range laneSet.Lanes {
		for _, ref := range lane.FlowNodeRefs {
			f.lanes[strings.TrimSpace(ref)] = lane.Name
		}
		// nested lanes are more specific and override the parent lane
		if lane.ChildLaneSet != nil {
			f.indexLanes(*lane.ChildLaneSet)
		}
	}
}

func (f *ProcessModelFacade) ProcessId() string { return f.processId }

func (f *ProcessModelFacade) Definitions() *TDefinitions { return f.definitions }

func (f *ProcessModelFacade) IsExecutable() bool { return f.isExecutable }

// Parent returns the facade of the enclosing container, nil for the process.
func (f *ProcessModelFacade) Parent() *ProcessModelFacade { return f.parent }

func (f *ProcessModelFacade) GetFlowNodeById(id string) FlowNode {
	return f.nodes[id]
}

func (f *ProcessModelFacade) GetStartEvents() []*TStartEvent {
	events := make([]*TStartEvent, 0, len(f.container.StartEvents))
	for i := range f.container.StartEvents {
		events = append(events, &f.container.StartEvents[i])
	}
	return events
}

func (f *ProcessModelFacade) GetStartEventById(id string) *TStartEvent {
	for _, event := range f.GetStartEvents() {
		if event.Id == id {
			return event
		}
	}
	return nil
}

// GetCyclicTimerStartEvents returns start events with an enabled timeCycle.
func (f *ProcessModelFacade) GetCyclicTimerStartEvents() []*TStartEvent {
	var events []*TStartEvent
	for _, event := range f.GetStartEvents() {
		if event.HasCyclicTimer() && event.TimerEventDefinition.IsEnabled() {
			events = append(events, event)
		}
	}
	return events
}

func (f *ProcessModelFacade) GetEndEvents() []*TEndEvent {
	events := make([]*TEndEvent, 0, len(f.container.EndEvents))
	for i := range f.container.EndEvents {
		events = append(events, &f.container.EndEvents[i])
	}
	return events
}

func (f *ProcessModelFacade) GetEndEventById(id string) *TEndEvent {
	for _, event := range f.GetEndEvents() {
		if event.Id == id {
			return event
		}
	}
	return nil
}

func (f *ProcessModelFacade) GetSequenceFlowById(id string) *TSequenceFlow {
	return f.flows[id]
}

func (f *ProcessModelFacade) GetOutgoingSequenceFlows(flowNodeId string) []*TSequenceFlow {
	return f.outgoing[flowNodeId]
}

func (f *ProcessModelFacade) GetIncomingSequenceFlows(flowNodeId string) []*TSequenceFlow {
	return f.incoming[flowNodeId]
}

// GetNextFlowNodes returns the targets of every outgoing sequence flow in
// modeled order.
func (f *ProcessModelFacade) GetNextFlowNodes(flowNode FlowNode) []FlowNode {
	return f.GetTargetFlowNodes(f.outgoing[flowNode.GetId()])
}

func (f *ProcessModelFacade) GetTargetFlowNodes(flows []*TSequenceFlow) []FlowNode {
	next := make([]FlowNode, 0, len(flows))
	for _, flow := range flows {
		if target := f.nodes[flow.TargetRef]; target != nil {
			next = append(next, target)
		}
	}
	return next
}

// GetLaneForFlowNode returns the lane name or an empty string when the flow
// node is not laid out in a lane.
func (f *ProcessModelFacade) GetLaneForFlowNode(flowNodeId string) string {
	return f.lanes[flowNodeId]
}

func (f *ProcessModelFacade) GetBoundaryEventsFor(activityId string) []*TBoundaryEvent {
	return f.boundaries[activityId]
}

func (f *ProcessModelFacade) GetLinkCatchEventsByLinkName(name string) []*TIntermediateCatchEvent {
	var events []*TIntermediateCatchEvent
	for i := range f.container.IntermediateCatchEvents {
		event := &f.container.IntermediateCatchEvents[i]
		if event.LinkEventDefinition != nil && event.LinkEventDefinition.Name == name {
			events = append(events, event)
		}
	}
	return events
}

// GetSubProcessModelFacade returns the facade over a sub-process container.
// The sub-process inherits the lane of its activity.
func (f *ProcessModelFacade) GetSubProcessModelFacade(subProcess *TSubProcess) *ProcessModelFacade {
	f.subFacadesMu.Lock()
	defer f.subFacadesMu.Unlock()
	if sub, ok := f.subFacades[subProcess.Id]; ok {
		return sub
	}
	sub := newContainerFacade(f.definitions, f.processId, &subProcess.TFlowElementsContainer, true, f, f.lanes[subProcess.Id])
	f.subFacades[subProcess.Id] = sub
	return sub
}

// GetMessageName resolves a message reference to the message name. References
// which do not match a declared message are used as the name directly.
func (f *ProcessModelFacade) GetMessageName(ref string) string {
	for _, message := range f.definitions.Messages {
		if message.Id == ref {
			return message.Name
		}
	}
	return ref
}

// GetSignalName resolves a signal reference the same way as GetMessageName.
func (f *ProcessModelFacade) GetSignalName(ref string) string {
	for _, signal := range f.definitions.Signals {
		if signal.Id == ref {
			return signal.Name
		}
	}
	return ref
}

func (f *ProcessModelFacade) FindError(ref string) *TError {
	for i := range f.definitions.Errors {
		if f.definitions.Errors[i].Id == ref {
			return &f.definitions.Errors[i]
		}
	}
	return nil
}
