package performance

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/perfguard/internal/metrics"
)

// Aggregate summarises every sample of one kind seen by a store. Percentiles
// cover the most recent window of values only.
type Aggregate struct {
	Kind  metrics.Kind `json:"kind" yaml:"kind"`
	Unit  string       `json:"unit" yaml:"unit"`
	Count int64        `json:"count" yaml:"count"`
	Sum   float64      `json:"sum" yaml:"sum"`
	Min   float64      `json:"min" yaml:"min"`
	Max   float64      `json:"max" yaml:"max"`
	Avg   float64      `json:"avg" yaml:"avg"`
	P95   float64      `json:"p95" yaml:"p95"`
	P99   float64      `json:"p99" yaml:"p99"`
}

type aggregate struct {
	Aggregate
	window *Window
}

// SampleStore is an in-process metrics.Reporter keeping the last samples in
// a ring buffer plus per-kind aggregates. Nothing is persisted.
type SampleStore struct {
	mu          sync.RWMutex
	samples     []metrics.Sample
	start       int
	capacity    int
	window      int
	aggregates  map[metrics.Kind]*aggregate
	subscribers []chan metrics.Sample
}

// NewSampleStore keeps up to capacity samples; percentiles are computed over
// the last window samples of each kind.
func NewSampleStore(capacity, window int) *SampleStore {
	if capacity <= 0 {
		capacity = 1000
	}
	if window <= 0 {
		window = 1000
	}
	return &SampleStore{
		samples:    make([]metrics.Sample, 0, capacity),
		capacity:   capacity,
		window:     window,
		aggregates: make(map[metrics.Kind]*aggregate),
	}
}

var _ metrics.Reporter = (*SampleStore)(nil)

// Report implements metrics.Reporter.
func (s *SampleStore) Report(_ context.Context, sample metrics.Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) < s.capacity {
		s.samples = append(s.samples, sample)
	} else {
		s.samples[s.start] = sample
		s.start = (s.start + 1) % s.capacity
	}
	s.update(sample)

	for _, ch := range s.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
}

func (s *SampleStore) update(sample metrics.Sample) {
	agg, ok := s.aggregates[sample.Kind]
	if !ok {
		agg = &aggregate{
			Aggregate: Aggregate{
				Kind: sample.Kind,
				Unit: sample.Kind.Unit(),
				Min:  sample.Value,
				Max:  sample.Value,
			},
			window: NewWindow(s.window),
		}
		s.aggregates[sample.Kind] = agg
	}
	agg.Count++
	agg.Sum += sample.Value
	agg.Avg = agg.Sum / float64(agg.Count)
	if sample.Value < agg.Min {
		agg.Min = sample.Value
	}
	if sample.Value > agg.Max {
		agg.Max = sample.Value
	}
	agg.window.Add(sample.Value)
	agg.P95 = agg.window.Percentile(95)
	agg.P99 = agg.window.Percentile(99)
}

// Subscribe returns a channel receiving every later sample and a cancel
// func that unregisters and closes it. Slow subscribers miss samples rather
// than blocking the reporter.
func (s *SampleStore) Subscribe(buffer int) (<-chan metrics.Sample, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan metrics.Sample, buffer)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subscribers {
				if sub == ch {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Samples returns held samples of kind (all kinds when empty) recorded at or
// after since, oldest first.
func (s *SampleStore) Samples(kind metrics.Kind, since time.Time) []metrics.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []metrics.Sample
	for i := 0; i < len(s.samples); i++ {
		sample := s.samples[(s.start+i)%len(s.samples)]
		if (kind == "" || sample.Kind == kind) && !sample.Timestamp.Before(since) {
			out = append(out, sample)
		}
	}
	return out
}

// Aggregate returns a copy of the aggregate for kind, or nil if none was
// reported.
func (s *SampleStore) Aggregate(kind metrics.Kind) *Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[kind]
	if !ok {
		return nil
	}
	out := agg.Aggregate
	return &out
}

// Aggregates returns copies of every aggregate in metrics.Kinds order.
func (s *SampleStore) Aggregates() []Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Aggregate, 0, len(s.aggregates))
	for _, k := range metrics.Kinds {
		if agg, ok := s.aggregates[k]; ok {
			out = append(out, agg.Aggregate)
		}
	}
	return out
}

// Len returns the number of held samples.
func (s *SampleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
