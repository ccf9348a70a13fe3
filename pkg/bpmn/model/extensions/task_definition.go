package extensions

// TTaskDefinition marks a service task as an external task. Type is the topic
// workers fetch and lock on.
type TTaskDefinition struct {
	TypeName string `xml:"type,attr" json:"type,omitempty"`
	Retries  string `xml:"retries,attr" json:"retries,omitempty"`
}

// TCalledElement is the extension form of callActivity#calledElement.
type TCalledElement struct {
	ProcessId string `xml:"processId,attr" json:"processId,omitempty"`
}
