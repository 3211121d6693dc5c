package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Lifecycle(t *testing.T) {
	provider, err := NewProvider("envsafe_test")
	require.NoError(t, err)
	assert.NotNil(t, provider.MeterProvider())
	assert.NotNil(t, provider.Handler())

	// An idle provider still serves a valid, empty exposition.
	assert.NotContains(t, scrape(t, provider), "envsafe_test_operations_total")

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestProvider_ShutdownWithoutMeterProvider(t *testing.T) {
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}
