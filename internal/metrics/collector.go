package metrics

import (
	"context"
	"sync"
	"time"

	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

// DefaultLongTaskThreshold is the duration a task must exceed to be reported.
const DefaultLongTaskThreshold = 50 * time.Millisecond

// Options tunes a Collector.
type Options struct {
	// LongTaskThreshold defaults to DefaultLongTaskThreshold.
	LongTaskThreshold time.Duration
	// Now stamps samples; defaults to time.Now.
	Now func() time.Time
}

// Collector owns one observation handle per metric kind.
type Collector struct {
	observers platform.ObserverFactory
	reporter  Reporter
	logger    logging.Logger
	threshold float64
	now       func() time.Time

	mu   sync.Mutex
	live map[Kind]*Handle
}

// NewCollector creates a collector. A nil factory makes every monitor a
// logged no-op; a nil reporter logs samples.
func NewCollector(observers platform.ObserverFactory, reporter Reporter, logger logging.Logger, opts Options) *Collector {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("metrics")
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}
	if opts.LongTaskThreshold <= 0 {
		opts.LongTaskThreshold = DefaultLongTaskThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		observers: observers,
		reporter:  reporter,
		logger:    logger,
		threshold: float64(opts.LongTaskThreshold) / float64(time.Millisecond),
		now:       opts.Now,
		live:      make(map[Kind]*Handle),
	}
}

// Handle owns one platform observer. Dispose is idempotent and safe on a nil
// handle.
type Handle struct {
	kind     Kind
	observer platform.PerformanceObserver
	once     sync.Once
	release  func(*Handle)
}

// Kind returns the metric kind this handle observes.
func (h *Handle) Kind() Kind {
	if h == nil {
		return ""
	}
	return h.kind
}

// Dispose disconnects the observer.
func (h *Handle) Dispose() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.observer.Disconnect()
		if h.release != nil {
			h.release(h)
		}
	})
}

// MonitorLCP reports the start time of the last entry in each batch, falling
// back to render time when start time is zero.
func (c *Collector) MonitorLCP() *Handle {
	return c.monitor(KindLCP, platform.EntryLargestContentfulPaint, func(entries []platform.PerformanceEntry) {
		last := entries[len(entries)-1]
		value := last.StartTime
		if value == 0 {
			value = last.RenderTime
		}
		c.report(Sample{Kind: KindLCP, Name: "LCP", Value: value})
	})
}

// MonitorCLS reports the running layout shift total after every batch.
// Shifts caused by recent input are excluded.
func (c *Collector) MonitorCLS() *Handle {
	var total float64
	return c.monitor(KindCLS, platform.EntryLayoutShift, func(entries []platform.PerformanceEntry) {
		for _, e := range entries {
			if !e.HadRecentInput {
				total += e.Value
			}
		}
		c.report(Sample{Kind: KindCLS, Name: "CLS", Value: total})
	})
}

// MonitorInteractions reports each first-input entry individually.
func (c *Collector) MonitorInteractions() *Handle {
	return c.monitor(KindInteraction, platform.EntryFirstInput, func(entries []platform.PerformanceEntry) {
		for _, e := range entries {
			c.report(Sample{Kind: KindInteraction, Name: e.Name, Value: e.Duration})
		}
	})
}

// MonitorLongTasks reports tasks whose duration exceeds the threshold.
func (c *Collector) MonitorLongTasks() *Handle {
	return c.monitor(KindLongTask, platform.EntryLongTask, func(entries []platform.PerformanceEntry) {
		for _, e := range entries {
			if e.Duration > c.threshold {
				c.report(Sample{Kind: KindLongTask, Name: "long-task", Value: e.Duration})
			}
		}
	})
}

// Start begins all four monitors and returns the handles that could be
// created.
func (c *Collector) Start() []*Handle {
	monitors := []func() *Handle{c.MonitorLCP, c.MonitorCLS, c.MonitorInteractions, c.MonitorLongTasks}
	handles := make([]*Handle, 0, len(monitors))
	for _, m := range monitors {
		if h := m(); h != nil {
			handles = append(handles, h)
		}
	}
	return handles
}

// Stop disposes every live handle.
func (c *Collector) Stop() {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.live))
	for _, h := range c.live {
		handles = append(handles, h)
	}
	c.mu.Unlock()
	for _, h := range handles {
		h.Dispose()
	}
}

// Live returns the live handle for kind, or nil.
func (c *Collector) Live(kind Kind) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live[kind]
}

func (c *Collector) monitor(kind Kind, entryType string, handle platform.ObserverCallback) (h *Handle) {
	ctx := context.Background()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.live[kind]; existing != nil {
		c.logger.Warn(ctx, nil, "Monitor already active, returning live handle", "kind", string(kind))
		return existing
	}
	if c.observers == nil {
		c.logger.Warn(ctx, platform.ErrUnsupported, "Performance observation unavailable", "kind", string(kind))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn(ctx, perrors.FromPanic(perrors.ErrCodeUnsupportedFeature, r),
				"Creating performance observer panicked", "kind", string(kind))
			h = nil
		}
	}()

	obs, err := c.observers.Observe(entryType, true, c.isolate(kind, handle))
	if err != nil {
		c.logger.Warn(ctx, err, "Metric not supported on this platform", "kind", string(kind), "entry_type", entryType)
		return nil
	}

	h = &Handle{kind: kind, observer: obs, release: c.release}
	c.live[kind] = h
	return h
}

func (c *Collector) release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live[h.kind] == h {
		delete(c.live, h.kind)
	}
}

// isolate keeps a failing callback from reaching the platform or other
// observers.
func (c *Collector) isolate(kind Kind, cb platform.ObserverCallback) platform.ObserverCallback {
	return func(entries []platform.PerformanceEntry) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error(context.Background(), perrors.FromPanic(perrors.ErrCodeInternalError, r),
					"Metric observer callback panicked", "kind", string(kind))
			}
		}()
		if len(entries) == 0 {
			return
		}
		cb(entries)
	}
}

func (c *Collector) report(s Sample) {
	s.Timestamp = c.now()
	c.reporter.Report(context.Background(), s)
}
