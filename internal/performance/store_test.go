package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/perfguard/internal/metrics"
)

func TestWindowPercentiles(t *testing.T) {
	w := NewWindow(100)
	for _, v := range []float64{5, 2, 8, 1, 9, 3, 10, 4, 7, 6} {
		w.Add(v)
	}

	tests := []struct {
		p    float64
		want float64
	}{
		{p: 0, want: 1},
		{p: 50, want: 5},
		{p: 90, want: 9},
		{p: 95, want: 9},
		{p: 100, want: 10},
		{p: 150, want: 10},
		{p: -5, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.Percentile(tt.p), "p%.0f", tt.p)
	}
	assert.Equal(t, 10, w.Len())
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for _, v := range []float64{100, 1, 2, 3} {
		w.Add(v)
	}
	assert.Equal(t, []float64{1, 2, 3}, w.Values())
	assert.Equal(t, 3.0, w.Percentile(100))

	w.Add(2)
	assert.Equal(t, []float64{2, 2, 3}, w.Values(), "duplicates survive eviction")
}

func TestWindowEmpty(t *testing.T) {
	w := NewWindow(0)
	assert.Zero(t, w.Percentile(99))
	assert.Empty(t, w.Values())
}

func TestSampleStoreAggregates(t *testing.T) {
	s := NewSampleStore(10, 10)
	ctx := context.Background()
	for _, v := range []float64{100, 200, 150, 300, 250} {
		s.Report(ctx, metrics.Sample{Kind: metrics.KindInteraction, Name: "click", Value: v})
	}
	s.Report(ctx, metrics.Sample{Kind: metrics.KindCLS, Name: "CLS", Value: 0.05})

	agg := s.Aggregate(metrics.KindInteraction)
	require.NotNil(t, agg)
	assert.Equal(t, int64(5), agg.Count)
	assert.Equal(t, 1000.0, agg.Sum)
	assert.Equal(t, 100.0, agg.Min)
	assert.Equal(t, 300.0, agg.Max)
	assert.Equal(t, 200.0, agg.Avg)
	assert.Equal(t, 250.0, agg.P95)
	assert.Equal(t, "ms", agg.Unit)

	assert.Nil(t, s.Aggregate(metrics.KindLongTask))

	all := s.Aggregates()
	require.Len(t, all, 2)
	assert.Equal(t, metrics.KindCLS, all[0].Kind, "aggregates follow kind order")
	assert.Equal(t, "score", all[0].Unit)
}

func TestSampleStoreRingBuffer(t *testing.T) {
	s := NewSampleStore(3, 10)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.Report(ctx, metrics.Sample{
			Kind:      metrics.KindLongTask,
			Value:     float64(60 + i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}

	assert.Equal(t, 3, s.Len())
	got := s.Samples("", time.Time{})
	require.Len(t, got, 3)
	assert.Equal(t, []float64{62, 63, 64}, []float64{got[0].Value, got[1].Value, got[2].Value})

	recent := s.Samples(metrics.KindLongTask, base.Add(3*time.Second))
	require.Len(t, recent, 2, "the since bound is inclusive")
	assert.Equal(t, 63.0, recent[0].Value)
	assert.Equal(t, 64.0, recent[1].Value)

	assert.Len(t, s.Samples(metrics.KindLongTask, base.Add(4*time.Second)), 1)
	assert.Empty(t, s.Samples(metrics.KindLongTask, base.Add(5*time.Second)))
	assert.Empty(t, s.Samples(metrics.KindLCP, time.Time{}))

	assert.Equal(t, int64(5), s.Aggregate(metrics.KindLongTask).Count, "aggregates outlive the ring")
}

func TestSampleStoreSubscribe(t *testing.T) {
	s := NewSampleStore(10, 10)
	ch, cancel := s.Subscribe(1)

	s.Report(context.Background(), metrics.Sample{Kind: metrics.KindLCP, Value: 1800})
	s.Report(context.Background(), metrics.Sample{Kind: metrics.KindLCP, Value: 2400})

	select {
	case got := <-ch:
		assert.Equal(t, 1800.0, got.Value)
		assert.False(t, got.Timestamp.IsZero())
	default:
		t.Fatal("expected a sample")
	}
	select {
	case <-ch:
		t.Fatal("full subscriber should have dropped the second sample")
	default:
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	assert.NotPanics(t, func() {
		s.Report(context.Background(), metrics.Sample{Kind: metrics.KindLCP, Value: 2600})
	})
	s.mu.RLock()
	assert.Empty(t, s.subscribers)
	s.mu.RUnlock()
}
