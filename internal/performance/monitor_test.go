package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/platform"
	"github.com/conneroisu/perfguard/internal/platform/simulated"
	"github.com/conneroisu/perfguard/internal/preload"
)

const menuPage = `<html><head><link rel="preload" href="/css/main.css" as="style"></head><body>
<section data-exclude-optimization="true"><img id="hero" src="/hero.jpg"></section>
<img id="dish" src="/dish.jpg">
<img id="dessert" src="/dessert.jpg">
</body></html>`

type harness struct {
	doc   *dom.HTMLDocument
	loop  *eventloop.Loop
	sim   *simulated.Platform
	store *SampleStore
	mon   *Monitor
}

func newHarness(t *testing.T, opts Options, simOpts ...simulated.Option) *harness {
	t.Helper()
	doc, err := dom.ParseString(menuPage, dom.WithViewportHeight(800))
	require.NoError(t, err)
	layout, err := dom.NewSelectorLayout([]dom.LayoutRule{
		{Selector: "#hero", Top: 0, Height: 600},
		{Selector: "#dish", Top: 900, Height: 300},
		{Selector: "#dessert", Top: 1700, Height: 300},
	})
	require.NoError(t, err)
	doc.SetLayout(layout)

	loop := eventloop.New(logging.NewNopLogger())
	sim := simulated.New(loop, dom.NewFacade(doc), simOpts...)
	store := NewSampleStore(100, 100)
	mon := NewMonitor(sim.Platform(), store, exclusion.Default(), logging.NewNopLogger(), opts)
	return &harness{doc: doc, loop: loop, sim: sim, store: store, mon: mon}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.loop.RunUntilIdle(ctx))
}

func (h *harness) preloads(t *testing.T) []string {
	t.Helper()
	links, err := h.doc.QuerySelectorAll(`link[rel="preload"]`)
	require.NoError(t, err)
	hrefs := make([]string, 0, len(links))
	for _, l := range links {
		href, _ := h.doc.GetAttribute(l, "href")
		hrefs = append(hrefs, href)
	}
	return hrefs
}

func TestInitPerformanceMonitoring(t *testing.T) {
	h := newHarness(t, Options{})
	h.sim.Emit(platform.PerformanceEntry{EntryType: platform.EntryLargestContentfulPaint, StartTime: 1200})

	h.mon.InitPerformanceMonitoring()
	h.drain(t)

	for _, k := range metrics.Kinds {
		assert.NotNil(t, h.mon.Collector().Live(k), k)
	}

	lcp := h.store.Aggregate(metrics.KindLCP)
	require.NotNil(t, lcp, "buffered LCP entry is delivered")
	assert.Equal(t, 1200.0, lcp.Max)

	assert.ElementsMatch(t,
		[]string{"/css/main.css", "/images/hero.webp", "/fonts/playfair-display.woff2"},
		h.preloads(t))

	res, ok := h.mon.Result()
	require.True(t, ok)
	assert.Equal(t, 2, res.Lazy)
	assert.Equal(t, 1, res.LowPriority)

	_, lazy := h.doc.GetAttribute(mustQuery(t, h.doc, "#hero"), "loading")
	assert.False(t, lazy, "protected hero is untouched")
}

func TestInitPerformanceMonitoringIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	h.mon.InitPerformanceMonitoring()
	h.drain(t)
	first := h.mon.Collector().Live(metrics.KindCLS)

	h.mon.InitPerformanceMonitoring()
	h.drain(t)
	assert.Same(t, first, h.mon.Collector().Live(metrics.KindCLS))
	assert.Len(t, h.preloads(t), 3)
}

func TestMonitorReportsLiveEntries(t *testing.T) {
	h := newHarness(t, Options{})
	h.mon.InitPerformanceMonitoring()
	h.drain(t)

	h.sim.Emit(
		platform.PerformanceEntry{EntryType: platform.EntryLayoutShift, Value: 0.1},
		platform.PerformanceEntry{EntryType: platform.EntryLayoutShift, Value: 0.2, HadRecentInput: true},
		platform.PerformanceEntry{EntryType: platform.EntryLayoutShift, Value: 0.3},
		platform.PerformanceEntry{EntryType: platform.EntryLongTask, Duration: 40},
		platform.PerformanceEntry{EntryType: platform.EntryLongTask, Duration: 60},
		platform.PerformanceEntry{EntryType: platform.EntryLongTask, Duration: 100},
	)
	h.drain(t)

	cls := h.store.Samples(metrics.KindCLS, time.Time{})
	require.NotEmpty(t, cls)
	assert.InDelta(t, 0.4, cls[len(cls)-1].Value, 1e-9)

	long := h.store.Samples(metrics.KindLongTask, time.Time{})
	require.Len(t, long, 2)
	assert.Equal(t, 60.0, long[0].Value)
	assert.Equal(t, 100.0, long[1].Value)
}

func TestMonitorCustomResources(t *testing.T) {
	h := newHarness(t, Options{Resources: []preload.Resource{{URL: "/menu.json", Type: preload.TypeScript}}})
	h.mon.InitPerformanceMonitoring()
	h.drain(t)
	assert.ElementsMatch(t, []string{"/css/main.css", "/menu.json"}, h.preloads(t))
}

func TestMonitorShutdown(t *testing.T) {
	h := newHarness(t, Options{})
	h.mon.InitPerformanceMonitoring()
	h.drain(t)

	h.loop.Post(h.mon.Shutdown)
	h.drain(t)
	for _, k := range metrics.Kinds {
		assert.Nil(t, h.mon.Collector().Live(k), k)
	}

	h.sim.Emit(platform.PerformanceEntry{EntryType: platform.EntryLongTask, Duration: 500})
	h.drain(t)
	assert.Empty(t, h.store.Samples(metrics.KindLongTask, time.Time{}))
}

func TestMonitorOnClosedLoop(t *testing.T) {
	h := newHarness(t, Options{})
	h.loop.Close()
	require.NotPanics(t, h.mon.InitPerformanceMonitoring)
	_, ok := h.mon.Result()
	assert.False(t, ok)
}

func mustQuery(t *testing.T, doc dom.Document, sel string) *html.Node {
	t.Helper()
	n, err := doc.QuerySelector(sel)
	require.NoError(t, err)
	require.NotNil(t, n)
	return n
}

func TestMonitorDegradesOnLimitedPlatform(t *testing.T) {
	h := newHarness(t,
		Options{Preload: preload.Options{FallbackDelay: 10 * time.Millisecond}},
		simulated.WithEntryTypes(platform.EntryLargestContentfulPaint),
		simulated.WithoutIdleScheduling(),
	)
	h.mon.InitPerformanceMonitoring()
	h.drain(t)

	assert.NotNil(t, h.mon.Collector().Live(metrics.KindLCP))
	assert.Nil(t, h.mon.Collector().Live(metrics.KindCLS))
	assert.Nil(t, h.mon.Collector().Live(metrics.KindLongTask))
	assert.Len(t, h.preloads(t), 3, "fixed delay fallback still preloads")
}
