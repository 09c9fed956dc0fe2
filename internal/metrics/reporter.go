package metrics

import (
	"context"

	"github.com/conneroisu/perfguard/internal/logging"
)

// Reporter receives samples. Implementations must not block the event loop.
type Reporter interface {
	Report(ctx context.Context, s Sample)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, s Sample)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, s Sample) { f(ctx, s) }

// NopReporter discards samples.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(context.Context, Sample) {}

// LogReporter writes every sample to a structured logger.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter creates a reporter logging at info level.
func NewLogReporter(logger logging.Logger) *LogReporter {
	return &LogReporter{logger: logger.WithComponent("metrics")}
}

// Report implements Reporter.
func (r *LogReporter) Report(ctx context.Context, s Sample) {
	r.logger.Info(ctx, "Performance sample",
		"kind", string(s.Kind),
		"name", s.Name,
		"value", s.Value,
		"unit", s.Kind.Unit(),
	)
}

// MultiReporter fans samples out to several reporters in order.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(ctx context.Context, s Sample) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, s)
		}
	}
}
