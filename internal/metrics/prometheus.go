package metrics

import (
	"context"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusReporter records samples into collectors registered on a
// caller-supplied registry. Nothing is served or pushed.
type PrometheusReporter struct {
	once      sync.Once
	latest    *prom.GaugeVec
	durations *prom.HistogramVec
	samples   *prom.CounterVec
}

// NewPrometheusReporter constructs and registers the collectors.
func NewPrometheusReporter(reg *prom.Registry) *PrometheusReporter {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusReporter{}
	pr.once.Do(func() {
		pr.latest = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "perfguard",
			Name:      "metric_latest",
			Help:      "Most recent value per metric kind (ms, CLS unitless)",
		}, []string{"kind"})
		pr.durations = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "perfguard",
			Name:      "metric_duration_seconds",
			Help:      "Distribution of time-valued samples",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.2, 0.5, 1, 2.5, 4, 10},
		}, []string{"kind"})
		pr.samples = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "perfguard",
			Name:      "samples_total",
			Help:      "Samples reported per metric kind",
		}, []string{"kind"})
		reg.MustRegister(pr.latest, pr.durations, pr.samples)
	})
	return pr
}

// Report implements Reporter.
func (p *PrometheusReporter) Report(_ context.Context, s Sample) {
	if p == nil || p.latest == nil {
		return
	}
	kind := string(s.Kind)
	p.latest.WithLabelValues(kind).Set(s.Value)
	p.samples.WithLabelValues(kind).Inc()
	if s.Kind != KindCLS {
		p.durations.WithLabelValues(kind).Observe(s.Value / 1000)
	}
}
