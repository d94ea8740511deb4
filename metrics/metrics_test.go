package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestNewClientMetricsRegistersAndIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)

	m.RequestsSent.WithLabelValues("10.0.0.1:1812", "1").Inc()
	m.Timeouts.WithLabelValues("10.0.0.1:1812", "1").Inc()
	// A CounterVec with no children is left out of Gather's output, so
	// touch the other two vecs to make all four families appear.
	m.ResponsesReceived.WithLabelValues("10.0.0.1:1812", "2")
	m.Stalled.WithLabelValues("10.0.0.1:1812")

	if got := counterValue(t, m.RequestsSent.WithLabelValues("10.0.0.1:1812", "1")); got != 1 {
		t.Errorf("RequestsSent = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 4 {
		t.Errorf("gathered %d metric families, want 4", len(families))
	}
}

func TestNewServerMetricsRegistersAndSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.DedupCacheSize.Set(7)
	m.Drops.WithLabelValues("10.0.0.1", "malformed packet").Inc()

	var gauge dto.Metric
	if err := m.DedupCacheSize.Write(&gauge); err != nil {
		t.Fatal(err)
	}
	if gauge.GetGauge().GetValue() != 7 {
		t.Errorf("DedupCacheSize = %v, want 7", gauge.GetGauge().GetValue())
	}
}

func TestNewProxyMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProxyMetrics(reg)

	m.Forwarded.WithLabelValues("10.0.0.9:1812", "1").Inc()
	m.Failed.WithLabelValues("10.0.0.9:1812", "timeout").Inc()

	if got := counterValue(t, m.Forwarded.WithLabelValues("10.0.0.9:1812", "1")); got != 1 {
		t.Errorf("Forwarded = %v, want 1", got)
	}
}
