package runtime

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(results []FlowNodeResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.FlowNodeInstanceId)
	}
	return out
}

func Test_add_result_for_flow_node_never_shrinks_nor_duplicates(t *testing.T) {
	facade := NewTokenFacade("pi", "model", "corr", Identity{})
	previous := 0
	for i := 0; i < 200; i++ {
		instanceId := fmt.Sprintf("i-%d", rand.Intn(20))
		facade.AddResultForFlowNode("node", instanceId, i)

		results := facade.GetAllResults()
		assert.GreaterOrEqual(t, len(results), previous)
		previous = len(results)

		seen := map[string]bool{}
		for _, r := range results {
			assert.False(t, seen[r.FlowNodeInstanceId], "duplicate %s", r.FlowNodeInstanceId)
			seen[r.FlowNodeInstanceId] = true
		}
	}
}

func Test_add_result_for_known_instance_replaces_in_place(t *testing.T) {
	facade := NewTokenFacade("pi", "model", "corr", Identity{})
	facade.AddResultForFlowNode("a", "1", "first")
	facade.AddResultForFlowNode("b", "2", "second")
	facade.AddResultForFlowNode("a", "1", "third")

	results := facade.GetAllResults()
	assert.Equal(t, []string{"1", "2"}, ids(results))
	assert.Equal(t, "third", results[0].Result)
}

func Test_get_all_results_returns_copy(t *testing.T) {
	facade := NewTokenFacade("pi", "model", "corr", Identity{})
	facade.AddResultForFlowNode("a", "1", "x")

	results := facade.GetAllResults()
	results[0].Result = "changed"

	assert.Equal(t, "x", facade.GetAllResults()[0].Result)
}

func Test_fork_and_merge_round_trip(t *testing.T) {
	// given
	parent := NewTokenFacade("pi", "model", "corr", Identity{})
	parent.AddResultForFlowNode("A", "a", 1)
	parent.AddResultForFlowNode("B", "b", 2)
	branch := parent.GetForkedTokenFacade()
	sibling := NewTokenFacade("pi", "model", "corr", Identity{})
	sibling.AddResultForFlowNode("C", "c", 3)

	// when
	branch.MergeTokenHistory(sibling)

	// then
	assert.Equal(t, []string{"a", "b", "c"}, ids(branch.GetAllResults()))
	assert.Equal(t, []string{"a", "b"}, ids(parent.GetAllResults()))
}

func Test_merge_skips_shared_history(t *testing.T) {
	parent := NewTokenFacade("pi", "model", "corr", Identity{})
	parent.AddResultForFlowNode("start", "s", nil)
	left := parent.GetForkedTokenFacade()
	right := parent.GetForkedTokenFacade()
	left.AddResultForFlowNode("A", "a", 1)
	right.AddResultForFlowNode("B", "b", 2)

	left.MergeTokenHistory(right)

	assert.Equal(t, []string{"s", "a", "b"}, ids(left.GetAllResults()))
}

func Test_get_old_token_format(t *testing.T) {
	facade := NewTokenFacade("pi", "model", "corr", Identity{})
	facade.AddResultForFlowNode("start", "1", map[string]any{"v": 1})
	facade.AddResultForFlowNode("task", "2", map[string]any{"v": 2})
	facade.AddResultForFlowNode("start", "3", map[string]any{"v": 3})

	token := facade.GetOldTokenFormat()

	history := token["history"].(map[string]any)
	assert.Equal(t, map[string]any{"v": 3}, history["start"])
	assert.Equal(t, map[string]any{"v": 2}, history["task"])
	assert.Equal(t, map[string]any{"v": 3}, token["current"])
}

func Test_get_old_token_format_is_detached(t *testing.T) {
	facade := NewTokenFacade("pi", "model", "corr", Identity{})
	facade.AddResultForFlowNode("start", "1", map[string]any{"v": 1})

	token := facade.GetOldTokenFormat()
	token["current"].(map[string]any)["v"] = 99

	assert.Equal(t, map[string]any{"v": 1}, facade.GetAllResults()[0].Result)
}

func Test_token_facade_concurrent_appends(t *testing.T) {
	facade := NewTokenFacade("pi", "model", "corr", Identity{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			facade.AddResultForFlowNode("node", fmt.Sprintf("%d", i), i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, facade.GetAllResults(), 50)
}

func Test_process_token_clone_does_not_share_payload(t *testing.T) {
	token := &ProcessToken{Payload: map[string]any{"list": []any{1, 2}}}

	clone := token.Clone()
	clone.Payload.(map[string]any)["list"].([]any)[0] = 5

	assert.Equal(t, 1, token.Payload.(map[string]any)["list"].([]any)[0])
}
