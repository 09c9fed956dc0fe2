// Package metrics observes Core Web Vitals style performance signals and
// forwards them as samples to reporters.
package metrics

import "time"

// Kind identifies the metric a sample belongs to.
type Kind string

const (
	KindLCP         Kind = "lcp"
	KindCLS         Kind = "cls"
	KindInteraction Kind = "interaction"
	KindLongTask    Kind = "long_task"
)

// Kinds lists every metric kind in monitor order.
var Kinds = []Kind{KindLCP, KindCLS, KindInteraction, KindLongTask}

// Unit returns the unit samples of k are measured in.
func (k Kind) Unit() string {
	if k == KindCLS {
		return "score"
	}
	return "ms"
}

// Sample is one reported measurement. Value is milliseconds except for CLS,
// which is a unitless score.
type Sample struct {
	Kind      Kind      `json:"kind" yaml:"kind"`
	Name      string    `json:"name" yaml:"name"`
	Value     float64   `json:"value" yaml:"value"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
