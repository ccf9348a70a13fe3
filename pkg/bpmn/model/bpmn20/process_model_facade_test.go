package bpmn20

import (
	"encoding/xml"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFacade(t *testing.T, file string) *ProcessModelFacade {
	t.Helper()
	data, err := os.ReadFile("../../test-cases/" + file)
	require.NoError(t, err)
	var definitions TDefinitions
	require.NoError(t, xml.Unmarshal(data, &definitions))
	return NewProcessModelFacade(&definitions)
}

func Test_facade_navigates_sequence_flows(t *testing.T) {
	facade := loadFacade(t, "exclusive-gateway.bpmn")

	decide := facade.GetFlowNodeById("decide")
	require.NotNil(t, decide)
	gateway, ok := decide.(*TExclusiveGateway)
	require.True(t, ok)

	assert.True(t, facade.IsExecutable())
	assert.Equal(t, "exclusive-gateway", facade.ProcessId())
	assert.Equal(t, "to-low", gateway.GetDefaultFlowId())
	assert.Len(t, facade.GetOutgoingSequenceFlows("decide"), 2)
	assert.Len(t, facade.GetIncomingSequenceFlows("decide"), 1)
	var next []string
	for _, node := range facade.GetNextFlowNodes(decide) {
		next = append(next, node.GetId())
	}
	assert.Equal(t, []string{"high", "low"}, next)
	assert.True(t, facade.GetSequenceFlowById("to-high").HasCondition())
	assert.False(t, facade.GetSequenceFlowById("to-low").HasCondition())
}

func Test_facade_resolves_declared_references(t *testing.T) {
	facade := loadFacade(t, "external-task.bpmn")

	declined := facade.FindError("card-declined")
	require.NotNil(t, declined)
	assert.Equal(t, "DECLINED", declined.ErrorCode)
	assert.Nil(t, facade.FindError("missing"))

	boundaries := facade.GetBoundaryEventsFor("charge")
	require.Len(t, boundaries, 1)
	assert.True(t, boundaries[0].IsInterrupting())
	assert.Equal(t, EventDefinitionError, boundaries[0].GetEventDefinitionType())

	charge, ok := facade.GetFlowNodeById("charge").(*TServiceTask)
	require.True(t, ok)
	assert.Equal(t, "payments", charge.GetTaskType())
}

func Test_facade_message_and_signal_names(t *testing.T) {
	messages := loadFacade(t, "message-boundary.bpmn")
	signals := loadFacade(t, "non-interrupting-signal-boundary.bpmn")

	assert.Equal(t, "cancel-review", messages.GetMessageName("msg-cancel"))
	assert.Equal(t, "undeclared", messages.GetMessageName("undeclared"))
	assert.Equal(t, "remind", signals.GetSignalName("sig-remind"))
	boundary := signals.GetBoundaryEventsFor("review")
	require.Len(t, boundary, 1)
	assert.False(t, boundary[0].IsInterrupting())
}

func Test_facade_sub_process_container(t *testing.T) {
	facade := loadFacade(t, "sub-process-error.bpmn")

	subProcess, ok := facade.GetFlowNodeById("validate").(*TSubProcess)
	require.True(t, ok)
	sub := facade.GetSubProcessModelFacade(subProcess)

	assert.Same(t, sub, facade.GetSubProcessModelFacade(subProcess))
	assert.Same(t, facade, sub.Parent())
	assert.Nil(t, facade.GetFlowNodeById("check"))
	assert.NotNil(t, sub.GetFlowNodeById("check"))
	require.Len(t, sub.GetStartEvents(), 1)
	assert.Equal(t, "validate-start", sub.GetStartEvents()[0].Id)
	assert.NotNil(t, sub.FindError("negative-amount"))
}

func Test_facade_link_and_cyclic_timer_events(t *testing.T) {
	links := loadFacade(t, "link-events.bpmn")
	cron := loadFacade(t, "cronjob.bpmn")

	catches := links.GetLinkCatchEventsByLinkName("to-target")
	require.Len(t, catches, 1)
	assert.Equal(t, "landing", catches[0].Id)
	assert.Empty(t, links.GetLinkCatchEventsByLinkName("nowhere"))

	cyclic := cron.GetCyclicTimerStartEvents()
	require.Len(t, cyclic, 1)
	assert.Equal(t, TimerTypeCycle, cyclic[0].TimerEventDefinition.GetTimerType())
	assert.Equal(t, "R2/PT1S", cyclic[0].TimerEventDefinition.GetValue())
}

func Test_disabled_cyclic_timer_is_not_scheduled(t *testing.T) {
	disabled := false
	definitions := TDefinitions{}
	definitions.Process.Id = "disabled"
	definitions.Process.StartEvents = []TStartEvent{{}}
	definitions.Process.StartEvents[0].Id = "tick"
	definitions.Process.StartEvents[0].TimerEventDefinition = &TTimerEventDefinition{
		TimeCycle: &TExpression{Text: "R/PT1H"},
		Enabled:   &disabled,
	}

	facade := NewProcessModelFacade(&definitions)

	assert.Empty(t, facade.GetCyclicTimerStartEvents())
	assert.True(t, facade.GetStartEventById("tick").HasCyclicTimer())
}
