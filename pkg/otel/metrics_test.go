package otel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"
)

func Test_new_metrics_creates_every_instrument(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))

	assert.NoError(t, err)
	assert.NotNil(t, metrics.ProcessesStarted)
	assert.NotNil(t, metrics.ProcessesRunning)
	assert.NotNil(t, metrics.CronjobsFired)
	assert.NotNil(t, metrics.ExternalTasksCompleted)
}
