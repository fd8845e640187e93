package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses around 700ms (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Model calls (15s - 120s) ---
	20000, 30000, 45000, 60000, 90000, 120000,
}

// Metric describes one collector: its name, help text, type and label names.
type Metric struct {
	Name        string
	Description string
	Type        string
	Args        []string
}

// NewMetric builds the collector described by m. Histograms use HistogramBuckets
// (milliseconds) since LLM-backed requests run for tens of seconds.
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	switch m.Type {
	case "counter_vec":
		return prometheus.NewCounterVec(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	case "counter":
		return prometheus.NewCounter(prometheus.CounterOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description})
	case "histogram_vec":
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description, Buckets: HistogramBuckets}, m.Args)
	case "summary_vec":
		return prometheus.NewSummaryVec(prometheus.SummaryOpts{Subsystem: subsystem, Name: m.Name, Help: m.Description}, m.Args)
	default:
		panic("metrics: unsupported metric type " + m.Type)
	}
}

var MetricsBusinessProcess = &Metric{
	Name:        "bp_dur_ms",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var MetricsGatedDecision = &Metric{
	Name:        "gated_decision_total",
	Description: "Gated action decisions, partitioned by action kind and result.",
	Type:        "counter_vec",
	Args:        []string{"kind", "result"},
}

var MetricsUsageCommit = &Metric{
	Name:        "usage_commit_total",
	Description: "Completed gated actions charged to usage counters.",
	Type:        "counter_vec",
	Args:        []string{"kind"},
}

var MetricsPremiumGrant = &Metric{
	Name:        "premium_grant_total",
	Description: "Premium grants applied, partitioned by source.",
	Type:        "counter_vec",
	Args:        []string{"source"},
}

var MetricsWebhookNotification = &Metric{
	Name:        "webhook_notification_total",
	Description: "Payment webhook notifications, partitioned by provider and outcome.",
	Type:        "counter_vec",
	Args:        []string{"provider", "outcome"},
}

var MetricsSweepRun = &Metric{
	Name:        "expiry_sweep_run_total",
	Description: "Premium expiry sweep runs, partitioned by result.",
	Type:        "counter_vec",
	Args:        []string{"result"},
}

var MetricsSweepExpired = &Metric{
	Name:        "expiry_sweep_expired_total",
	Description: "Accounts moved back to the free tier by the expiry sweep.",
	Type:        "counter",
}
