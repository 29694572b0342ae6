package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreConcurrencySafe(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter(Transitions)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.GetCounters()[Transitions])
}

func TestTimersTrackMinAndMax(t *testing.T) {
	m := NewMetrics()
	m.RecordTimer(Refreshes, 30)
	m.RecordTimer(Refreshes, 10)
	m.RecordTimer(Refreshes, 20)

	timer := m.GetTimers()[Refreshes]
	assert.Equal(t, int64(3), timer.Count)
	assert.Equal(t, int64(10), timer.MinTimeMs)
	assert.Equal(t, int64(30), timer.MaxTimeMs)
	assert.InDelta(t, 20.0, timer.AverageTimeMs, 0.001)
}

func TestTrackRecordsErrorRate(t *testing.T) {
	m := NewMetrics()
	m.Track(Transitions, time.Now(), nil)
	m.Track(Transitions, time.Now(), errors.New("boom"))

	rate := m.GetErrorRates()[Transitions]
	assert.Equal(t, int64(2), rate.Total)
	assert.Equal(t, int64(1), rate.Errors)
	assert.InDelta(t, 50.0, rate.ErrorRate, 0.001)
}

func TestGaugesAndHealth(t *testing.T) {
	m := NewMetrics()
	m.AddGauge(WebsocketClients, 2)
	m.AddGauge(WebsocketClients, -1)
	m.SetHealth("database", true)
	m.SetHealth("redis", false)

	all := m.GetAllMetrics()
	require.Contains(t, all, "gauges")
	assert.Equal(t, int64(1), m.GetGauges()[WebsocketClients])
	assert.Equal(t, map[string]bool{"database": true, "redis": false}, m.GetHealthChecks())
}
