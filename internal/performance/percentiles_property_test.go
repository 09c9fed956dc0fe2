//go:build property
// +build property

package performance

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestWindowProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("window holds the sorted tail of the input", prop.ForAll(
		func(values []float64, size int) bool {
			w := NewWindow(size)
			for _, v := range values {
				w.Add(v)
			}
			tail := values
			if len(tail) > size {
				tail = tail[len(tail)-size:]
			}
			want := append([]float64(nil), tail...)
			sort.Float64s(want)

			got := w.Values()
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 10000)),
		gen.IntRange(1, 50),
	))

	properties.Property("percentiles are monotonic", prop.ForAll(
		func(values []float64) bool {
			w := NewWindow(len(values) + 1)
			for _, v := range values {
				w.Add(v)
			}
			prev := w.Percentile(0)
			for p := 5.0; p <= 100; p += 5 {
				cur := w.Percentile(p)
				if cur < prev {
					return false
				}
				prev = cur
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-500, 500)),
	))

	properties.TestingRun(t)
}
