package chrome

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

func drain(t *testing.T, loop *eventloop.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.RunUntilIdle(ctx))
}

func TestDispatcherDeliversBindingPayloads(t *testing.T) {
	loop := eventloop.New(logging.NewNopLogger())
	d := newDispatcher(loop, logging.NewNopLogger())
	d.setSupported([]string{platform.EntryLayoutShift})

	require.NoError(t, d.handlePayload([]byte(`{"kind":"entries","type":"layout-shift",
		"entries":[{"entry_type":"layout-shift","value":0.1,"start_time":120}]}`)))

	var got []platform.PerformanceEntry
	obs, err := d.Observe(platform.EntryLayoutShift, true, func(entries []platform.PerformanceEntry) {
		got = append(got, entries...)
	})
	require.NoError(t, err)

	require.NoError(t, d.handlePayload([]byte(`{"kind":"entries","type":"layout-shift",
		"entries":[{"entry_type":"layout-shift","value":0.2,"had_recent_input":true}]}`)))
	drain(t, loop)

	require.Len(t, got, 2)
	assert.Equal(t, 0.1, got[0].Value)
	assert.Equal(t, 120.0, got[0].StartTime)
	assert.True(t, got[1].HadRecentInput)

	obs.Disconnect()
	require.NoError(t, d.handlePayload([]byte(`{"kind":"entries","type":"layout-shift","entries":[{"value":0.5}]}`)))
	drain(t, loop)
	assert.Len(t, got, 2)

	_, err = d.Observe(platform.EntryLongTask, false, func([]platform.PerformanceEntry) {})
	assert.True(t, perrors.IsUnsupported(err))

	assert.Error(t, d.handlePayload([]byte(`{not json`)))
}

func TestDispatcherFonts(t *testing.T) {
	loop := eventloop.New(logging.NewNopLogger())
	d := newDispatcher(loop, logging.NewNopLogger())

	calls := 0
	d.Ready(func() { calls++ })
	require.NoError(t, d.handlePayload([]byte(`{"kind":"fonts"}`)))
	require.NoError(t, d.handlePayload([]byte(`{"kind":"fonts"}`)))
	d.Ready(func() { calls++ })
	drain(t, loop)
	assert.Equal(t, 2, calls)
}

func TestSnapshotDocument(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{
		"url": "https://example.test/",
		"viewport_height": 700,
		"reduced_motion": true,
		"html": "<html><head></head><body><img data-perfguard-idx=\"0\" src=\"a.jpg\"><p data-perfguard-idx=\"1\">x</p></body></html>",
		"rects": [{"idx":0,"top":10,"width":100,"height":50},{"idx":1,"top":1500,"height":20}]
	}`))
	require.NoError(t, err)
	assert.True(t, snap.ReducedMotion)

	doc, err := snap.Document()
	require.NoError(t, err)
	assert.Equal(t, 700.0, doc.ViewportHeight())

	img, _ := doc.QuerySelector("img")
	r, err := doc.BoundingClientRect(img)
	require.NoError(t, err)
	assert.Equal(t, dom.Rect{Top: 10, Width: 100, Height: 50}, r)

	p, _ := doc.QuerySelector("p")
	r, err = doc.BoundingClientRect(p)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, r.Top)

	assert.NotContains(t, doc.String(), idxAttr)
}
