package bpmn20

const (
	ElementTypeStartEvent             ElementType = "START_EVENT"
	ElementTypeEndEvent               ElementType = "END_EVENT"
	ElementTypeIntermediateCatchEvent ElementType = "INTERMEDIATE_CATCH_EVENT"
	ElementTypeIntermediateThrowEvent ElementType = "INTERMEDIATE_THROW_EVENT"
	ElementTypeBoundaryEvent          ElementType = "BOUNDARY_EVENT"
)

type EventDefinitionType string

const (
	EventDefinitionNone      EventDefinitionType = "none"
	EventDefinitionMessage   EventDefinitionType = "message"
	EventDefinitionSignal    EventDefinitionType = "signal"
	EventDefinitionTimer     EventDefinitionType = "timer"
	EventDefinitionLink      EventDefinitionType = "link"
	EventDefinitionError     EventDefinitionType = "error"
	EventDefinitionTerminate EventDefinitionType = "terminate"
)

// Event is a flow node which may carry one event definition.
type Event interface {
	FlowNode
	GetEventDefinitions() TEventDefinitions
}

// TEventDefinitions holds the event definition of an event. Only one of the
// fields is expected to be set.
type TEventDefinitions struct {
	MessageEventDefinition   *TMessageEventDefinition   `xml:"messageEventDefinition" json:"messageEventDefinition,omitempty"`
	SignalEventDefinition    *TSignalEventDefinition    `xml:"signalEventDefinition" json:"signalEventDefinition,omitempty"`
	TimerEventDefinition     *TTimerEventDefinition     `xml:"timerEventDefinition" json:"timerEventDefinition,omitempty"`
	LinkEventDefinition      *TLinkEventDefinition      `xml:"linkEventDefinition" json:"linkEventDefinition,omitempty"`
	ErrorEventDefinition     *TErrorEventDefinition     `xml:"errorEventDefinition" json:"errorEventDefinition,omitempty"`
	TerminateEventDefinition *TTerminateEventDefinition `xml:"terminateEventDefinition" json:"terminateEventDefinition,omitempty"`
}

func (d TEventDefinitions) GetEventDefinitions() TEventDefinitions { return d }

func (d TEventDefinitions) GetEventDefinitionType() EventDefinitionType {
	switch {
	case d.MessageEventDefinition != nil:
		return EventDefinitionMessage
	case d.SignalEventDefinition != nil:
		return EventDefinitionSignal
	case d.TimerEventDefinition != nil:
		return EventDefinitionTimer
	case d.LinkEventDefinition != nil:
		return EventDefinitionLink
	case d.ErrorEventDefinition != nil:
		return EventDefinitionError
	case d.TerminateEventDefinition != nil:
		return EventDefinitionTerminate
	}
	return EventDefinitionNone
}

type TEvent struct {
	TFlowNode
	TEventDefinitions
}

type TStartEvent struct {
	TEvent
	IsInterrupting   bool `xml:"isInterrupting,attr" json:"isInterrupting,omitempty"`
	ParallelMultiple bool `xml:"parallelMultiple,attr" json:"parallelMultiple,omitempty"`
}

func (startEvent TStartEvent) GetType() ElementType { return ElementTypeStartEvent }

// HasCyclicTimer reports whether the start event is driven by the cronjob scheduler.
func (startEvent TStartEvent) HasCyclicTimer() bool {
	timer := startEvent.TimerEventDefinition
	return timer != nil && timer.GetTimerType() == TimerTypeCycle
}

type TEndEvent struct {
	TEvent
}

func (endEvent TEndEvent) GetType() ElementType { return ElementTypeEndEvent }

type TIntermediateCatchEvent struct {
	TEvent
	ParallelMultiple bool `xml:"parallelMultiple,attr" json:"parallelMultiple,omitempty"`
}

func (intermediateCatchEvent TIntermediateCatchEvent) GetType() ElementType {
	return ElementTypeIntermediateCatchEvent
}

type TIntermediateThrowEvent struct {
	TEvent
}

func (intermediateThrowEvent TIntermediateThrowEvent) GetType() ElementType {
	return ElementTypeIntermediateThrowEvent
}

type TBoundaryEvent struct {
	TEvent
	AttachedToRef  string `xml:"attachedToRef,attr" json:"attachedToRef"`
	CancelActivity *bool  `xml:"cancelActivity,attr" json:"cancelActivity,omitempty"`
}

func (boundaryEvent TBoundaryEvent) GetType() ElementType { return ElementTypeBoundaryEvent }

// IsInterrupting defaults to true, as in BPMN 2.0.
func (boundaryEvent TBoundaryEvent) IsInterrupting() bool {
	return boundaryEvent.CancelActivity == nil || *boundaryEvent.CancelActivity
}

type TMessageEventDefinition struct {
	Id         string `xml:"id,attr" json:"id,omitempty"`
	MessageRef string `xml:"messageRef,attr" json:"messageRef"`
}

type TSignalEventDefinition struct {
	Id        string `xml:"id,attr" json:"id,omitempty"`
	SignalRef string `xml:"signalRef,attr" json:"signalRef"`
}

type TLinkEventDefinition struct {
	Id   string `xml:"id,attr" json:"id,omitempty"`
	Name string `xml:"name,attr" json:"name"`
}

type TErrorEventDefinition struct {
	Id       string `xml:"id,attr" json:"id,omitempty"`
	ErrorRef string `xml:"errorRef,attr" json:"errorRef,omitempty"`
}

type TTerminateEventDefinition struct {
	Id string `xml:"id,attr" json:"id,omitempty"`
}

type TimerType string

const (
	TimerTypeDuration TimerType = "duration"
	TimerTypeDate     TimerType = "date"
	TimerTypeCycle    TimerType = "cycle"
)

type TTimerEventDefinition struct {
	Id           string       `xml:"id,attr" json:"id,omitempty"`
	TimeDuration *TExpression `xml:"timeDuration" json:"timeDuration,omitempty"`
	TimeDate     *TExpression `xml:"timeDate" json:"timeDate,omitempty"`
	TimeCycle    *TExpression `xml:"timeCycle" json:"timeCycle,omitempty"`
	// Enabled is a zenflow extension attribute. Disabled cyclic timers are not
	// scheduled.
	Enabled *bool `xml:"enabled,attr" json:"enabled,omitempty"`
}

func (t TTimerEventDefinition) GetTimerType() TimerType {
	switch {
	case t.TimeCycle.GetText() != "":
		return TimerTypeCycle
	case t.TimeDate.GetText() != "":
		return TimerTypeDate
	}
	return TimerTypeDuration
}

// GetValue returns the expression of whichever timer kind is set.
func (t TTimerEventDefinition) GetValue() string {
	switch t.GetTimerType() {
	case TimerTypeCycle:
		return t.TimeCycle.GetText()
	case TimerTypeDate:
		return t.TimeDate.GetText()
	}
	return t.TimeDuration.GetText()
}

func (t TTimerEventDefinition) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}
