package runtime

import "sync"

type FlowNodeResult struct {
	FlowNodeId         string `json:"flowNodeId"`
	FlowNodeInstanceId string `json:"flowNodeInstanceId"`
	Result             any    `json:"result,omitempty"`
}

// TokenFacade keeps the ordered result history of one branch.
// At most one result is kept per flow node instance.
type TokenFacade struct {
	mu                sync.RWMutex
	processInstanceId string
	processModelId    string
	correlationId     string
	identity          Identity
	results           []FlowNodeResult
}

func NewTokenFacade(processInstanceId, processModelId, correlationId string, identity Identity) *TokenFacade {
	return &TokenFacade{
		processInstanceId: processInstanceId,
		processModelId:    processModelId,
		correlationId:     correlationId,
		identity:          identity,
	}
}

func (f *TokenFacade) ProcessInstanceId() string { return f.processInstanceId }
func (f *TokenFacade) ProcessModelId() string    { return f.processModelId }
func (f *TokenFacade) CorrelationId() string     { return f.correlationId }
func (f *TokenFacade) Identity() Identity        { return f.identity }

// CreateProcessToken returns a token carrying the facade's identifiers.
func (f *TokenFacade) CreateProcessToken(payload any) *ProcessToken {
	return &ProcessToken{
		Payload:           payload,
		Identity:          f.identity,
		CorrelationId:     f.correlationId,
		ProcessInstanceId: f.processInstanceId,
		ProcessModelId:    f.processModelId,
	}
}

// AddResultForFlowNode appends the result. A result for an already known
// flow node instance replaces the previous one in place.
func (f *TokenFacade) AddResultForFlowNode(flowNodeId, flowNodeInstanceId string, result any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.results {
		if f.results[i].FlowNodeInstanceId == flowNodeInstanceId {
			f.results[i].Result = result
			return
		}
	}
	f.results = append(f.results, FlowNodeResult{
		FlowNodeId:         flowNodeId,
		FlowNodeInstanceId: flowNodeInstanceId,
		Result:             result,
	})
}

func (f *TokenFacade) GetAllResults() []FlowNodeResult {
	f.mu.RLock()
	defer f.mu.RUnlock()
	results := make([]FlowNodeResult, len(f.results))
	copy(results, f.results)
	return results
}

// GetLatestResult returns the last result appended, ok is false on an empty history.
func (f *TokenFacade) GetLatestResult() (result FlowNodeResult, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.results) == 0 {
		return FlowNodeResult{}, false
	}
	return f.results[len(f.results)-1], true
}

// ImportResults appends every result whose flow node instance is not yet known.
func (f *TokenFacade) ImportResults(results []FlowNodeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importLocked(results)
}

func (f *TokenFacade) importLocked(results []FlowNodeResult) {
	known := make(map[string]struct{}, len(f.results))
	for _, r := range f.results {
		known[r.FlowNodeInstanceId] = struct{}{}
	}
	for _, r := range results {
		if _, ok := known[r.FlowNodeInstanceId]; ok {
			continue
		}
		known[r.FlowNodeInstanceId] = struct{}{}
		f.results = append(f.results, r)
	}
}

// GetForkedTokenFacade returns a new facade for a parallel branch seeded with
// a copy of the current history.
func (f *TokenFacade) GetForkedTokenFacade() *TokenFacade {
	forked := NewTokenFacade(f.processInstanceId, f.processModelId, f.correlationId, f.identity)
	forked.ImportResults(f.GetAllResults())
	return forked
}

// MergeTokenHistory splices the history of other into this facade keeping
// the relative order of both and dropping duplicates.
func (f *TokenFacade) MergeTokenHistory(other *TokenFacade) {
	if other == f {
		return
	}
	results := other.GetAllResults()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importLocked(results)
}

// GetOldTokenFormat renders the history the way expressions see it:
// history maps every flow node id to its latest result, current is the last result.
func (f *TokenFacade) GetOldTokenFormat() map[string]any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	history := make(map[string]any, len(f.results))
	var current any
	for _, r := range f.results {
		history[r.FlowNodeId] = DeepCopy(r.Result)
	}
	if len(f.results) > 0 {
		current = DeepCopy(f.results[len(f.results)-1].Result)
	}
	return map[string]any{
		"history": history,
		"current": current,
	}
}
