package otel

const (
	Prefix                      = "bpmn-"
	AttributeProcessInstanceId  = Prefix + "instance-id"
	AttributeProcessModelId     = Prefix + "process-model-id"
	AttributeCorrelationId      = Prefix + "correlation-id"
	AttributeElementId          = Prefix + "element-id"
	AttributeFlowNodeInstanceId = Prefix + "flow-node-instance-id"
	AttributeElementName        = Prefix + "element-name"
	AttributeElementType        = Prefix + "element-type"

	SpanStatusFlowNode = Prefix + "flow-node-state"
)
