package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CacheHits.WithLabelValues("exact", "hit").Inc()
	m.ObserveGateMetrics(1, 2)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEstimateTokenCount_HasFloor(t *testing.T) {
	assert.Equal(t, 10, EstimateTokenCount("hi"))
	assert.Equal(t, 10, EstimateTokenCount(""))
}

func TestEstimateTokenCount_ScalesWithLength(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	assert.Equal(t, 100, EstimateTokenCount(string(long)))
}

func TestEstimateCost_HeavyCostsMoreThanLight(t *testing.T) {
	heavy := EstimateCost("a reasonably long prompt here", "a reasonably long response here", true, false)
	light := EstimateCost("a reasonably long prompt here", "a reasonably long response here", false, false)
	assert.Greater(t, heavy.Cost, light.Cost)
}

func TestEstimateCost_CacheCostOnlyWhenEnabled(t *testing.T) {
	withCache := EstimateCost("prompt", "response", false, true)
	withoutCache := EstimateCost("prompt", "response", false, false)
	assert.Greater(t, withCache.CacheCost, 0.0)
	assert.Equal(t, 0.0, withoutCache.CacheCost)
	assert.Equal(t, withCache.Cost+withCache.CacheCost, withCache.TotalCost)
}
