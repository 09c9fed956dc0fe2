package metrics

import (
	"bytes"
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

type fakeObserver struct {
	disconnects int
}

func (o *fakeObserver) Disconnect() { o.disconnects++ }

// fakeFactory delivers batches synchronously to registered callbacks.
type fakeFactory struct {
	supported map[string]bool
	callbacks map[string][]platform.ObserverCallback
	observers map[string][]*fakeObserver
	panics    bool
}

func newFakeFactory(types ...string) *fakeFactory {
	f := &fakeFactory{
		supported: make(map[string]bool),
		callbacks: make(map[string][]platform.ObserverCallback),
		observers: make(map[string][]*fakeObserver),
	}
	for _, t := range types {
		f.supported[t] = true
	}
	return f
}

func (f *fakeFactory) Observe(entryType string, _ bool, cb platform.ObserverCallback) (platform.PerformanceObserver, error) {
	if f.panics {
		panic("observer constructor exploded")
	}
	if !f.supported[entryType] {
		return nil, platform.UnsupportedEntryType(entryType)
	}
	o := &fakeObserver{}
	f.callbacks[entryType] = append(f.callbacks[entryType], cb)
	f.observers[entryType] = append(f.observers[entryType], o)
	return o, nil
}

func (f *fakeFactory) emit(entryType string, entries ...platform.PerformanceEntry) {
	for _, cb := range f.callbacks[entryType] {
		cb(entries)
	}
}

type recorder struct {
	samples []Sample
}

func (r *recorder) Report(_ context.Context, s Sample) { r.samples = append(r.samples, s) }

func (r *recorder) values(kind Kind) []float64 {
	var out []float64
	for _, s := range r.samples {
		if s.Kind == kind {
			out = append(out, s.Value)
		}
	}
	return out
}

func newTestCollector(f platform.ObserverFactory, rec Reporter) *Collector {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return NewCollector(f, rec, logging.NewNopLogger(), Options{Now: func() time.Time { return fixed }})
}

func TestMonitorCLSExcludesRecentInput(t *testing.T) {
	f := newFakeFactory(platform.EntryLayoutShift)
	rec := &recorder{}
	c := newTestCollector(f, rec)

	require.NotNil(t, c.MonitorCLS())
	f.emit(platform.EntryLayoutShift,
		platform.PerformanceEntry{HadRecentInput: false, Value: 0.1},
		platform.PerformanceEntry{HadRecentInput: true, Value: 0.2},
		platform.PerformanceEntry{HadRecentInput: false, Value: 0.3},
	)

	got := rec.values(KindCLS)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.4, got[0], 1e-9)

	f.emit(platform.EntryLayoutShift, platform.PerformanceEntry{Value: 0.05})
	got = rec.values(KindCLS)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.45, got[1], 1e-9, "running total carries across batches")
}

func TestMonitorLongTasksThreshold(t *testing.T) {
	f := newFakeFactory(platform.EntryLongTask)
	rec := &recorder{}
	c := newTestCollector(f, rec)

	require.NotNil(t, c.MonitorLongTasks())
	f.emit(platform.EntryLongTask,
		platform.PerformanceEntry{Duration: 40},
		platform.PerformanceEntry{Duration: 60},
		platform.PerformanceEntry{Duration: 100},
		platform.PerformanceEntry{Duration: 50},
	)

	assert.Equal(t, []float64{60, 100}, rec.values(KindLongTask))
}

func TestMonitorLCPLastWins(t *testing.T) {
	f := newFakeFactory(platform.EntryLargestContentfulPaint)
	rec := &recorder{}
	c := newTestCollector(f, rec)

	require.NotNil(t, c.MonitorLCP())
	f.emit(platform.EntryLargestContentfulPaint,
		platform.PerformanceEntry{StartTime: 900},
		platform.PerformanceEntry{StartTime: 2400},
		platform.PerformanceEntry{StartTime: 1200},
	)
	f.emit(platform.EntryLargestContentfulPaint,
		platform.PerformanceEntry{StartTime: 0, RenderTime: 1350},
	)

	assert.Equal(t, []float64{1200, 1350}, rec.values(KindLCP))
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), rec.samples[0].Timestamp)
}

func TestMonitorInteractionsReportsEachEntry(t *testing.T) {
	f := newFakeFactory(platform.EntryFirstInput)
	rec := &recorder{}
	c := newTestCollector(f, rec)

	require.NotNil(t, c.MonitorInteractions())
	f.emit(platform.EntryFirstInput,
		platform.PerformanceEntry{Name: "pointerdown", Duration: 16},
		platform.PerformanceEntry{Name: "keydown", Duration: 24},
	)

	require.Len(t, rec.samples, 2)
	assert.Equal(t, "pointerdown", rec.samples[0].Name)
	assert.Equal(t, 24.0, rec.samples[1].Value)
}

func TestUnsupportedReturnsNil(t *testing.T) {
	rec := &recorder{}

	c := newTestCollector(newFakeFactory(), rec)
	assert.Nil(t, c.MonitorLCP())
	assert.Nil(t, c.MonitorLongTasks())

	c = newTestCollector(nil, rec)
	assert.Nil(t, c.MonitorCLS())

	f := newFakeFactory(platform.EntryLayoutShift)
	f.panics = true
	c = newTestCollector(f, rec)
	assert.Nil(t, c.MonitorCLS())
	assert.Empty(t, c.Start())
}

func TestSecondMonitorReturnsLiveHandle(t *testing.T) {
	f := newFakeFactory(platform.EntryLongTask)
	c := newTestCollector(f, &recorder{})

	first := c.MonitorLongTasks()
	second := c.MonitorLongTasks()
	assert.Same(t, first, second)
	assert.Len(t, f.observers[platform.EntryLongTask], 1)

	first.Dispose()
	first.Dispose()
	assert.Equal(t, 1, f.observers[platform.EntryLongTask][0].disconnects)
	assert.Nil(t, c.Live(KindLongTask))

	third := c.MonitorLongTasks()
	assert.NotSame(t, first, third)

	var nilHandle *Handle
	nilHandle.Dispose()
	assert.Equal(t, Kind(""), nilHandle.Kind())
}

func TestPanickingCallbackIsIsolated(t *testing.T) {
	f := newFakeFactory(platform.EntryLayoutShift, platform.EntryLongTask)
	calls := 0
	panicking := ReporterFunc(func(_ context.Context, s Sample) {
		calls++
		if s.Kind == KindCLS {
			panic("reporter exploded")
		}
	})
	c := newTestCollector(f, panicking)
	c.Start()

	assert.NotPanics(t, func() {
		f.emit(platform.EntryLayoutShift, platform.PerformanceEntry{Value: 0.2})
		f.emit(platform.EntryLongTask, platform.PerformanceEntry{Duration: 80})
	})
	assert.Equal(t, 2, calls)
}

func TestStartStop(t *testing.T) {
	f := newFakeFactory(platform.EntryLargestContentfulPaint, platform.EntryLayoutShift,
		platform.EntryFirstInput, platform.EntryLongTask)
	c := newTestCollector(f, &recorder{})

	handles := c.Start()
	require.Len(t, handles, 4)
	for _, k := range Kinds {
		assert.NotNil(t, c.Live(k))
	}

	c.Stop()
	for _, k := range Kinds {
		assert.Nil(t, c.Live(k))
	}
	for _, obs := range f.observers {
		assert.Equal(t, 1, obs[0].disconnects)
	}
}

func TestReporters(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelInfo, Format: "json", Output: &buf})
	rec := &recorder{}
	multi := MultiReporter{NewLogReporter(logger), nil, rec, NopReporter{}}

	multi.Report(context.Background(), Sample{Kind: KindCLS, Name: "CLS", Value: 0.12})

	assert.Len(t, rec.samples, 1)
	assert.Contains(t, buf.String(), `"kind":"cls"`)
	assert.Contains(t, buf.String(), `"unit":"score"`)
}

func TestPrometheusReporter(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusReporter(reg)
	pr.Report(context.Background(), Sample{Kind: KindLCP, Value: 1800})
	pr.Report(context.Background(), Sample{Kind: KindCLS, Value: 0.1})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["perfguard_metric_latest"])
	assert.True(t, names["perfguard_metric_duration_seconds"])
	assert.True(t, names["perfguard_samples_total"])

	var nilReporter *PrometheusReporter
	assert.NotPanics(t, func() { nilReporter.Report(context.Background(), Sample{}) })
}
