// Package platform describes the browser capabilities the performance core
// relies on. Implementations deliver every callback through the event loop.
package platform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/eventloop"
)

// Performance entry types understood by the metrics collector.
const (
	EntryLargestContentfulPaint = "largest-contentful-paint"
	EntryLayoutShift            = "layout-shift"
	EntryFirstInput             = "first-input"
	EntryLongTask               = "longtask"
)

// ErrUnsupported is returned when the platform cannot provide a capability.
var ErrUnsupported = perrors.NewUnsupportedError(perrors.ErrCodeUnsupportedFeature,
	"capability not supported by platform", nil)

// UnsupportedEntryType reports that one entry type cannot be observed. Use
// errors.IsUnsupported to test for either error.
func UnsupportedEntryType(entryType string) error {
	return perrors.NewUnsupportedError(perrors.ErrCodeUnsupportedEntryType,
		fmt.Sprintf("entry type %q not supported", entryType), nil).
		WithContext("entry_type", entryType)
}

// PerformanceEntry mirrors the fields of the browser entry types in use.
// Times are milliseconds since navigation start.
type PerformanceEntry struct {
	Name           string  `json:"name" yaml:"name"`
	EntryType      string  `json:"entry_type" yaml:"entry_type"`
	StartTime      float64 `json:"start_time" yaml:"start_time"`
	Duration       float64 `json:"duration" yaml:"duration"`
	Value          float64 `json:"value,omitempty" yaml:"value,omitempty"`
	HadRecentInput bool    `json:"had_recent_input,omitempty" yaml:"had_recent_input,omitempty"`
	RenderTime     float64 `json:"render_time,omitempty" yaml:"render_time,omitempty"`
	LoadTime       float64 `json:"load_time,omitempty" yaml:"load_time,omitempty"`
}

// ObserverCallback receives one delivered batch, in platform order.
type ObserverCallback func(entries []PerformanceEntry)

// PerformanceObserver is a live subscription to one entry type.
type PerformanceObserver interface {
	Disconnect()
}

// ObserverFactory creates performance observers. Observe returns an
// unsupported-type error when entryType cannot be observed.
type ObserverFactory interface {
	Observe(entryType string, buffered bool, cb ObserverCallback) (PerformanceObserver, error)
}

// IntersectionEntry reports a visibility change for one observed element.
type IntersectionEntry struct {
	Target            *html.Node
	IsIntersecting    bool
	IntersectionRatio float64
}

// IntersectionCallback receives changed entries together with the observer
// that produced them.
type IntersectionCallback func(entries []IntersectionEntry, observer IntersectionObserver)

// IntersectionObserver tracks viewport visibility of elements.
type IntersectionObserver interface {
	Observe(target *html.Node)
	Unobserve(target *html.Node)
	Disconnect()
}

// IntersectionOptions configures an intersection observer.
type IntersectionOptions struct {
	// RootMargin grows the viewport, e.g. "50px".
	RootMargin string
	Threshold  float64
}

// IntersectionFactory creates intersection observers.
type IntersectionFactory interface {
	NewIntersectionObserver(cb IntersectionCallback, opts IntersectionOptions) (IntersectionObserver, error)
}

// Scheduler defers work onto the event loop.
type Scheduler interface {
	// RequestIdle returns ErrUnsupported when idle scheduling is unavailable.
	RequestIdle(fn eventloop.IdleFunc, timeout time.Duration) (cancel func(), err error)
	AfterFunc(d time.Duration, fn eventloop.Task) (cancel func())
}

// MediaQueries answers user preference queries.
type MediaQueries interface {
	PrefersReducedMotion() bool
}

// FontSet signals when web fonts have finished loading.
type FontSet interface {
	// Ready registers cb to run on the loop once fonts are loaded. If they
	// already are, cb is posted immediately.
	Ready(cb func())
}

// Platform bundles the capabilities of one page. A nil capability is treated
// as unsupported.
type Platform struct {
	Document      *dom.Facade
	Loop          *eventloop.Loop
	Observers     ObserverFactory
	Intersections IntersectionFactory
	Scheduler     Scheduler
	Media         MediaQueries
	Fonts         FontSet
}

// LoopScheduler implements Scheduler directly on an event loop.
type LoopScheduler struct {
	Loop *eventloop.Loop
	// NoIdle disables RequestIdle, mimicking browsers without idle callbacks.
	NoIdle bool
}

// RequestIdle implements Scheduler.
func (s LoopScheduler) RequestIdle(fn eventloop.IdleFunc, timeout time.Duration) (func(), error) {
	if s.NoIdle {
		return nil, ErrUnsupported
	}
	return s.Loop.RequestIdle(fn, timeout), nil
}

// AfterFunc implements Scheduler.
func (s LoopScheduler) AfterFunc(d time.Duration, fn eventloop.Task) func() {
	return s.Loop.AfterFunc(d, fn)
}

// StaticMedia is a fixed MediaQueries answer.
type StaticMedia struct {
	ReducedMotion bool
}

// PrefersReducedMotion implements MediaQueries.
func (m StaticMedia) PrefersReducedMotion() bool { return m.ReducedMotion }

// ParseRootMargin converts a CSS root margin into pixels. Only the top value
// is used; percentages are not supported.
func ParseRootMargin(margin string) (float64, error) {
	fields := strings.Fields(margin)
	if len(fields) == 0 {
		return 0, nil
	}
	first := fields[0]
	if first == "0" {
		return 0, nil
	}
	if !strings.HasSuffix(first, "px") {
		return 0, perrors.NewValidationError(perrors.ErrCodeValidationFailed,
			fmt.Sprintf("root margin %q must be in px", margin))
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(first, "px"), 64)
	if err != nil {
		return 0, perrors.NewValidationError(perrors.ErrCodeValidationFailed,
			fmt.Sprintf("invalid root margin %q", margin))
	}
	return v, nil
}
