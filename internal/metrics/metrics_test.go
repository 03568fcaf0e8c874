package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("probes_sent", nil, "probe emails sent")
	r.IncrementCounter("probes_sent", nil, "probe emails sent")
	r.AddToCounter("probes_sent", 3, nil, "probe emails sent")

	all := r.GetAllMetrics()
	counters := all["counters"].(map[string]*Metric)
	require.Contains(t, counters, "probes_sent")
	assert.Equal(t, float64(5), counters["probes_sent"].Value)
}

func TestCounterWithLabels(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("dispatch_total", map[string]string{"outcome": "sent"}, "")
	r.IncrementCounter("dispatch_total", map[string]string{"outcome": "failed"}, "")
	r.IncrementCounter("dispatch_total", map[string]string{"outcome": "sent"}, "")

	counters := r.GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Equal(t, float64(2), counters["dispatch_total_outcome:sent"].Value)
	assert.Equal(t, float64(1), counters["dispatch_total_outcome:failed"].Value)
}

func TestTimer(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("smtp_send", 100*time.Millisecond, nil, "")
	r.RecordTimer("smtp_send", 300*time.Millisecond, nil, "")

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	require.Contains(t, timers, "smtp_send")
	timer := timers["smtp_send"]
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 100, timer.Min, 1)
	assert.InDelta(t, 300, timer.Max, 1)
	assert.InDelta(t, 200, timer.Average, 1)
}

func TestTimerPercentiles(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 100; i++ {
		r.RecordTimer("bounce_scan", time.Duration(i)*time.Millisecond, nil, "")
	}

	timers := r.GetAllMetrics()["timers"].(map[string]*TimerMetric)
	timer := timers["bounce_scan"]
	assert.InDelta(t, 95, timer.P95, 2)
	assert.InDelta(t, 99, timer.P99, 2)
}

func TestGauge(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("relays_eligible", 3, nil, "")
	r.SetGauge("relays_eligible", 1, nil, "")

	gauges := r.GetAllMetrics()["gauges"].(map[string]*Metric)
	assert.Equal(t, float64(1), gauges["relays_eligible"].Value)
}

func TestMetricKeyIsStable(t *testing.T) {
	a := metricKey("m", map[string]string{"x": "1", "y": "2"})
	b := metricKey("m", map[string]string{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestGlobalRegistry(t *testing.T) {
	IncrementCounter("global_test_counter", nil, "")
	counters := GetAllMetrics()["counters"].(map[string]*Metric)
	assert.Contains(t, counters, "global_test_counter")
}
