package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyQuantilesEmptySamplesReturnsZero(t *testing.T) {
	p50, p95, err := latencyQuantiles(nil)
	require.NoError(t, err)
	assert.Zero(t, p50)
	assert.Zero(t, p95)
}

func TestLatencyQuantilesOrdersAroundMedianAndTail(t *testing.T) {
	samples := make([]float64, 0, 100)
	for i := 1; i <= 100; i++ {
		samples = append(samples, float64(i)/1000)
	}

	p50, p95, err := latencyQuantiles(samples)
	require.NoError(t, err)

	assert.InDelta(t, 0.05, p50, 0.01)
	assert.InDelta(t, 0.095, p95, 0.01)
	assert.Less(t, p50, p95)
}
