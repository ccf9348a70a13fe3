package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbinitiative/zenflow/internal/config"
)

func Test_setup_otel_without_tracing(t *testing.T) {
	o, err := SetupOtel(config.Tracing{Name: "otel-test"})

	require.NoError(t, err)
	assert.NotNil(t, o.meterProvider)
	assert.Nil(t, o.tracerprovider)
	assert.NotNil(t, RequestTotal)
	assert.NoError(t, EnsureRequestInstruments())

	o.Stop(context.Background())
	assert.Nil(t, o.meterProvider)
	o.Stop(context.Background())
}
