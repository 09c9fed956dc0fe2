// Package performance is the entry point of the instrumentation subsystem. A
// Monitor composes the metric collector, the resource preloader and the DOM
// optimizer over one platform, and SampleStore keeps recent samples with
// aggregates for reporting.
package performance

import (
	"context"
	"sync"

	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/optimizer"
	"github.com/conneroisu/perfguard/internal/platform"
	"github.com/conneroisu/perfguard/internal/preload"
)

// DefaultResources is preloaded by InitPerformanceMonitoring unless Options
// carries a list of its own.
var DefaultResources = []preload.Resource{
	{URL: "/images/hero.webp", Type: preload.TypeImage},
	{URL: "/css/main.css", Type: preload.TypeStyle},
	{URL: "/fonts/playfair-display.woff2", Type: preload.TypeFont},
}

// Options configures the composed components.
type Options struct {
	Resources []preload.Resource
	Metrics   metrics.Options
	Preload   preload.Options
	Optimizer optimizer.Options
}

// Monitor owns the collector, preloader and optimizer of one page.
type Monitor struct {
	pl     *platform.Platform
	logger logging.Logger
	opts   Options

	collector *metrics.Collector
	preloader *preload.Preloader
	optimizer *optimizer.Optimizer

	mu      sync.Mutex
	started bool
	result  *optimizer.Result
}

// NewMonitor wires the components over pl. A nil reporter logs samples.
func NewMonitor(pl *platform.Platform, reporter metrics.Reporter, registry *exclusion.Registry, logger logging.Logger, opts Options) *Monitor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if reporter == nil {
		reporter = metrics.NewLogReporter(logger)
	}
	if opts.Resources == nil {
		opts.Resources = DefaultResources
	}
	return &Monitor{
		pl:        pl,
		logger:    logger.WithComponent("performance"),
		opts:      opts,
		collector: metrics.NewCollector(pl.Observers, reporter, logger, opts.Metrics),
		preloader: preload.New(pl.Document, pl.Scheduler, logger, opts.Preload),
		optimizer: optimizer.New(pl, registry, logger, opts.Optimizer),
	}
}

// InitPerformanceMonitoring starts every monitor, schedules the preload list
// and runs the optimizer's first pass. Work is posted to the platform's event
// loop; without one it runs on the calling goroutine. Later calls are no-ops.
// Failures are logged, never returned.
func (m *Monitor) InitPerformanceMonitoring() {
	ctx := context.Background()

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn(ctx, nil, "Performance monitoring already initialized")
		return
	}
	m.started = true
	m.mu.Unlock()

	if m.pl.Loop == nil {
		m.init(ctx)
		return
	}
	if !m.pl.Loop.Post(func() { m.init(ctx) }) {
		m.logger.Warn(ctx, nil, "Event loop closed, performance monitoring not started")
	}
}

func (m *Monitor) init(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(ctx, nil, "Performance monitoring initialization panicked", "panic", r)
		}
	}()

	handles := m.collector.Start()
	live := 0
	for _, h := range handles {
		if h != nil {
			live++
		}
	}
	m.preloader.PreloadCriticalResources(m.opts.Resources)
	res := m.optimizer.Run()

	m.mu.Lock()
	m.result = &res
	m.mu.Unlock()

	m.logger.Info(ctx, "Performance monitoring initialized",
		"monitors", live,
		"preload_resources", len(m.opts.Resources),
		"lazy", res.Lazy,
		"low_priority", res.LowPriority,
	)
}

// Result returns the first optimizer pass summary once it has run.
func (m *Monitor) Result() (optimizer.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return optimizer.Result{}, false
	}
	return *m.result, true
}

// Collector exposes the metric collector.
func (m *Monitor) Collector() *metrics.Collector { return m.collector }

// Optimizer exposes the DOM optimizer.
func (m *Monitor) Optimizer() *optimizer.Optimizer { return m.optimizer }

// Shutdown disposes every observer. It must run on the event loop.
func (m *Monitor) Shutdown() {
	m.collector.Stop()
	m.optimizer.Stop()
}
