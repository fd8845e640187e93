package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const businessSubsystem = "kitchenbot"

// Business holds the domain collectors. A nil *Business is valid and records nothing.
type Business struct {
	gatedDecision *prometheus.CounterVec
	usageCommit   *prometheus.CounterVec
	premiumGrant  *prometheus.CounterVec
	webhook       *prometheus.CounterVec
	sweepRun      *prometheus.CounterVec
	sweepExpired  prometheus.Counter
	process       *prometheus.HistogramVec
}

func NewBusiness(reg prometheus.Registerer) (*Business, error) {
	b := &Business{}
	var err error
	if b.gatedDecision, err = register[*prometheus.CounterVec](reg, MetricsGatedDecision, businessSubsystem); err != nil {
		return nil, err
	}
	if b.usageCommit, err = register[*prometheus.CounterVec](reg, MetricsUsageCommit, businessSubsystem); err != nil {
		return nil, err
	}
	if b.premiumGrant, err = register[*prometheus.CounterVec](reg, MetricsPremiumGrant, businessSubsystem); err != nil {
		return nil, err
	}
	if b.webhook, err = register[*prometheus.CounterVec](reg, MetricsWebhookNotification, businessSubsystem); err != nil {
		return nil, err
	}
	if b.sweepRun, err = register[*prometheus.CounterVec](reg, MetricsSweepRun, businessSubsystem); err != nil {
		return nil, err
	}
	if b.sweepExpired, err = register[prometheus.Counter](reg, MetricsSweepExpired, businessSubsystem); err != nil {
		return nil, err
	}
	if b.process, err = register[*prometheus.HistogramVec](reg, MetricsBusinessProcess, businessSubsystem); err != nil {
		return nil, err
	}
	return b, nil
}

// register creates the collector for m, reusing an already registered one.
func register[T prometheus.Collector](reg prometheus.Registerer, m *Metric, subsystem string) (T, error) {
	var zero T
	c := NewMetric(m, subsystem)
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return zero, err
		}
		c = are.ExistingCollector
	}
	typed, ok := c.(T)
	if !ok {
		return zero, errors.New("metric " + m.Name + " registered with a different type")
	}
	return typed, nil
}

func (b *Business) GatedDecision(kind, result string) {
	if b == nil {
		return
	}
	b.gatedDecision.WithLabelValues(kind, result).Inc()
}

func (b *Business) UsageCommitted(kind string) {
	if b == nil {
		return
	}
	b.usageCommit.WithLabelValues(kind).Inc()
}

func (b *Business) PremiumGranted(source string) {
	if b == nil {
		return
	}
	b.premiumGrant.WithLabelValues(source).Inc()
}

func (b *Business) Webhook(provider, outcome string) {
	if b == nil {
		return
	}
	b.webhook.WithLabelValues(provider, outcome).Inc()
}

func (b *Business) SweepRun(result string, expired int64) {
	if b == nil {
		return
	}
	b.sweepRun.WithLabelValues(result).Inc()
	if expired > 0 {
		b.sweepExpired.Add(float64(expired))
	}
}

// ObserveProcess records the latency of a business step in milliseconds.
func (b *Business) ObserveProcess(typ, subtype string, start time.Time) {
	if b == nil {
		return
	}
	b.process.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

func newDefaultBusiness() (*Business, error) {
	return NewBusiness(prometheus.DefaultRegisterer)
}

var Module = fx.Options(
	fx.Provide(newDefaultBusiness),
)
