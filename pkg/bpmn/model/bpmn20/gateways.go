package bpmn20

type GatewayDirection string

const (
	ElementTypeParallelGateway  ElementType = "PARALLEL_GATEWAY"
	ElementTypeExclusiveGateway ElementType = "EXCLUSIVE_GATEWAY"
	ElementTypeInclusiveGateway ElementType = "INCLUSIVE_GATEWAY"
	ElementTypeComplexGateway   ElementType = "COMPLEX_GATEWAY"

	Unspecified GatewayDirection = "Unspecified"
	Converging  GatewayDirection = "Converging"
	Diverging   GatewayDirection = "Diverging"
	Mixed       GatewayDirection = "Mixed"
)

type TGateway struct {
	TFlowNode
	GatewayDirection GatewayDirection `xml:"gatewayDirection,attr" json:"gatewayDirection,omitempty"`
	// Default is the id of the sequence flow taken when no condition holds.
	Default string `xml:"default,attr" json:"default,omitempty"`
}

type GatewayElement interface {
	FlowNode
	GetDefaultFlowId() string
	IsParallel() bool
	IsExclusive() bool
	IsInclusive() bool
	IsComplex() bool
}

func (gateway TGateway) GetDefaultFlowId() string { return gateway.Default }

// Defaults
func (gateway TGateway) IsParallel() bool  { return false }
func (gateway TGateway) IsExclusive() bool { return false }
func (gateway TGateway) IsInclusive() bool { return false }
func (gateway TGateway) IsComplex() bool   { return false }

type TParallelGateway struct {
	TGateway
}

func (parallelGateway TParallelGateway) GetType() ElementType { return ElementTypeParallelGateway }
func (parallelGateway TParallelGateway) IsParallel() bool     { return true }

type TExclusiveGateway struct {
	TGateway
}

func (exclusiveGateway TExclusiveGateway) GetType() ElementType { return ElementTypeExclusiveGateway }
func (exclusiveGateway TExclusiveGateway) IsExclusive() bool    { return true }

type TInclusiveGateway struct {
	TGateway
}

func (inclusiveGateway TInclusiveGateway) GetType() ElementType { return ElementTypeInclusiveGateway }
func (inclusiveGateway TInclusiveGateway) IsInclusive() bool    { return true }

type TComplexGateway struct {
	TGateway
	// ActivationCondition is evaluated with activationCount in scope each time
	// a branch arrives at the converging gateway.
	ActivationCondition *TExpression `xml:"activationCondition" json:"activationCondition,omitempty"`
}

func (complexGateway TComplexGateway) GetType() ElementType { return ElementTypeComplexGateway }
func (complexGateway TComplexGateway) IsComplex() bool      { return true }
