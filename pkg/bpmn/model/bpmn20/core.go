package bpmn20

import "strings"

// All BPMN elements that inherit from the BaseElement will have the capability,
// through the Documentation element, to have one (1) or more text descriptions
// of that element.
type TDocumentation struct {
	// This attribute is used to capture the text descriptions of a
	// BPMN element.
	Text string `xml:",chardata" json:"text,omitempty"`

	// This attribute identifies the format of the text. It MUST follow
	// the mime-type format. The default is "text/plain".
	Format string `xml:"textFormat,attr" json:"format,omitempty"`
}

type TBaseElement struct {
	// This attribute is used to uniquely identify BPMN elements. The id is
	// REQUIRED if this element is referenced or intended to be referenced by
	// something else. If the element is not currently referenced and is never
	// intended to be referenced, the id MAY be omitted.
	Id string `xml:"id,attr" json:"id"`

	// This attribute is used to annotate the BPMN element, such as descriptions
	// and other documentation.
	Documentation []TDocumentation `xml:"documentation" json:"documentation,omitempty"`
}

func (t TBaseElement) GetId() string {
	return t.Id
}

type BaseElement interface {
	GetId() string
}

type TRootElementsContainer struct {
	Process  TProcess   `xml:"process" json:"process"`
	Messages []TMessage `xml:"message" json:"messages,omitempty"`
	Signals  []TSignal  `xml:"signal" json:"signals,omitempty"`
	Errors   []TError   `xml:"error" json:"errors,omitempty"`
}

type TDefinitions struct {
	TBaseElement
	TRootElementsContainer
	Name               string `xml:"name,attr" json:"name,omitempty"`
	TargetNamespace    string `xml:"targetNamespace,attr" json:"targetNamespace,omitempty"`
	ExpressionLanguage string `xml:"expressionLanguage,attr" json:"expressionLanguage,omitempty"`
	TypeLanguage       string `xml:"typeLanguage,attr" json:"typeLanguage,omitempty"`
	Exporter           string `xml:"exporter,attr" json:"exporter,omitempty"`
	ExporterVersion    string `xml:"exporterVersion,attr" json:"exporterVersion,omitempty"`
}

type TMessage struct {
	Id   string `xml:"id,attr" json:"id"`
	Name string `xml:"name,attr" json:"name"`
}

type TSignal struct {
	Id   string `xml:"id,attr" json:"id"`
	Name string `xml:"name,attr" json:"name"`
}

// TError is referenced by error end events and error boundary events.
type TError struct {
	Id        string `xml:"id,attr" json:"id"`
	Name      string `xml:"name,attr" json:"name"`
	ErrorCode string `xml:"errorCode,attr" json:"errorCode"`
}

type TCallableElement struct {
	TBaseElement
	Name string `xml:"name,attr" json:"name,omitempty"`
}

type ElementType string

type FlowElement interface {
	BaseElement
	GetName() string
	GetType() ElementType
}

type TFlowElement struct {
	TBaseElement
	Name string `xml:"name,attr" json:"name,omitempty"`
}

func (fe TFlowElement) GetName() string {
	return fe.Name
}

type TSequenceFlow struct {
	TFlowElement
	SourceRef           string       `xml:"sourceRef,attr" json:"sourceRef"`
	TargetRef           string       `xml:"targetRef,attr" json:"targetRef"`
	ConditionExpression *TExpression `xml:"conditionExpression" json:"conditionExpression,omitempty"`
}

func (sf TSequenceFlow) GetType() ElementType { return ElementTypeSequenceFlow }

// HasCondition is true when the flow carries a non-blank condition expression.
func (sf TSequenceFlow) HasCondition() bool {
	return sf.ConditionExpression != nil && sf.ConditionExpression.GetText() != ""
}

type FlowNode interface {
	FlowElement
	GetIncomingAssociation() []string
	GetOutgoingAssociation() []string
}

type TFlowNode struct {
	TFlowElement
	IncomingAssociation []string `xml:"incoming" json:"incoming,omitempty"`
	OutgoingAssociation []string `xml:"outgoing" json:"outgoing,omitempty"`
}

func (fn TFlowNode) GetIncomingAssociation() []string {
	return fn.IncomingAssociation
}

func (fn TFlowNode) GetOutgoingAssociation() []string {
	return fn.OutgoingAssociation
}

type TExpression struct {
	Text string `xml:",chardata" json:"text"`
}

func (e *TExpression) GetText() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text)
}
