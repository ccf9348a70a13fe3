package runtime

// ProcessToken carries the payload of one branch. It is owned by the handler
// currently executing the branch and is copied with Clone before it is handed
// to another branch.
type ProcessToken struct {
	Payload           any      `json:"payload,omitempty"`
	Identity          Identity `json:"identity"`
	CorrelationId     string   `json:"correlationId"`
	ProcessInstanceId string   `json:"processInstanceId"`
	ProcessModelId    string   `json:"processModelId"`
	CallerId          string   `json:"callerId,omitempty"`
	CurrentLane       string   `json:"currentLane,omitempty"`
}

func (t *ProcessToken) Clone() *ProcessToken {
	clone := *t
	clone.Payload = DeepCopy(t.Payload)
	clone.Identity.Claims = append([]string(nil), t.Identity.Claims...)
	return &clone
}

// DeepCopy copies the maps and slices decoded JSON and scripts produce. Every
// other value is returned as is.
func DeepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = DeepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, item := range v {
			out[i], _ = DeepCopy(item).(map[string]any)
		}
		return out
	default:
		return v
	}
}
