package zaplog

import (
	"testing"

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func Test_exporter_writes_one_line_per_event(t *testing.T) {
	// given
	core, logs := observer.New(zap.DebugLevel)
	exp := New(zap.New(core))
	instance := &exporter.ProcessInstanceEvent{ProcessModelId: "order", ProcessInstanceId: "pi-1", Intent: exporter.ProcessStarted}

	// when
	exp.NewProcessEvent(&exporter.ProcessEvent{ProcessModelId: "order", Version: 2, Intent: exporter.ProcessDeployed})
	exp.NewProcessInstanceEvent(instance)
	exp.NewElementEvent(instance, &exporter.ElementInfo{ElementId: "task", Intent: exporter.ElementActivated})

	// then
	entries := logs.All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "PROCESS_DEPLOYED", entries[0].Message)
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, "pi-1", entries[1].ContextMap()["processInstanceId"])
	assert.Equal(t, "task", entries[2].ContextMap()["elementId"])
}

func Test_exporter_logs_errors_as_warnings(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	exp := New(zap.New(core))

	exp.NewProcessInstanceEvent(&exporter.ProcessInstanceEvent{Intent: exporter.ProcessError, Error: "boom"})

	entries := logs.FilterMessage("PROCESS_ERROR").All()
	assert.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}
