// Package optimizer applies low-risk DOM hints that improve perceived
// performance: lazy loading, fetch priority, reduced motion overrides,
// visibility-gated animations and deferred image sources, and font-display.
//
// Every mutation is preceded by an exclusion check for that element, on every
// pass and in every observer callback. Attributes are only written when
// absent, so running the optimizer again is a no-op for processed elements.
package optimizer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

// Identifiers the optimizer writes into the page.
const (
	ReducedMotionStyleID  = "perfguard-reduced-motion"
	FontDisplayStyleID    = "perfguard-font-display"
	ClassAnimationRunning = "animation-running"
	ClassAnimationPaused  = "animation-paused"
	ClassMotionReduced    = "motion-reduced"
	ClassFontsLoaded      = "fonts-loaded"
)

// DefaultAnimationClasses are the classes whose animations are gated on
// visibility.
var DefaultAnimationClasses = []string{"animate-fade-in", "animate-float"}

// Options tunes the optimizer.
type Options struct {
	// LazyLoadViewports is how many viewport heights down an image must start
	// to receive loading="lazy".
	LazyLoadViewports float64
	// LowPriorityViewports is the same threshold for fetchpriority="low".
	LowPriorityViewports float64
	AnimationClasses     []string
	// RootMargin grows the viewport for visibility gating.
	RootMargin string
}

func (o *Options) defaults() {
	if o.LazyLoadViewports <= 0 {
		o.LazyLoadViewports = 1
	}
	if o.LowPriorityViewports <= 0 {
		o.LowPriorityViewports = 2
	}
	if len(o.AnimationClasses) == 0 {
		o.AnimationClasses = DefaultAnimationClasses
	}
	if o.RootMargin == "" {
		o.RootMargin = "50px"
	}
}

// Result summarises one pass.
type Result struct {
	Lazy            int      `json:"lazy" yaml:"lazy"`
	LowPriority     int      `json:"low_priority" yaml:"low_priority"`
	MotionReduced   int      `json:"motion_reduced" yaml:"motion_reduced"`
	Observed        int      `json:"observed" yaml:"observed"`
	Excluded        int      `json:"excluded" yaml:"excluded"`
	ElementErrors   int      `json:"element_errors" yaml:"element_errors"`
	StylesInjected  []string `json:"styles_injected,omitempty" yaml:"styles_injected,omitempty"`
	VisibilityEager bool     `json:"visibility_eager,omitempty" yaml:"visibility_eager,omitempty"`
}

// Optimizer mutates the page through the platform's document facade. All
// methods must run on the event loop.
type Optimizer struct {
	doc      dom.Document
	pl       *platform.Platform
	registry *exclusion.Registry
	logger   logging.Logger
	opts     Options

	visibility     platform.IntersectionObserver
	observed       map[*html.Node]bool
	fontsRequested bool
}

// New creates an optimizer over pl.Document.
func New(pl *platform.Platform, registry *exclusion.Registry, logger logging.Logger, opts Options) *Optimizer {
	opts.defaults()
	if registry == nil {
		registry = exclusion.Default()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Optimizer{
		doc:      pl.Document,
		pl:       pl,
		registry: registry,
		logger:   logger.WithComponent("optimizer"),
		opts:     opts,
		observed: make(map[*html.Node]bool),
	}
}

// Run performs a full pass.
func (o *Optimizer) Run() Result {
	ctx := context.Background()
	perf := logging.StartOperation(o.logger, "optimize")

	var res Result
	o.OptimizeImages(&res)
	o.ApplyReducedMotion(&res)
	o.ObserveVisibility(&res)
	o.ApplyFontDisplay(&res)

	perf.End(ctx,
		"lazy", res.Lazy,
		"low_priority", res.LowPriority,
		"observed", res.Observed,
		"excluded", res.Excluded,
		"element_errors", res.ElementErrors,
	)
	return res
}

// Stop disconnects the shared visibility observer.
func (o *Optimizer) Stop() {
	if o.visibility != nil {
		o.visibility.Disconnect()
		o.visibility = nil
	}
	o.observed = make(map[*html.Node]bool)
}

// OptimizeImages runs the lazy loading and fetch priority passes. The passes
// are independent, so one image can receive both hints.
func (o *Optimizer) OptimizeImages(res *Result) {
	vh := o.doc.ViewportHeight()
	o.imagePass(res, "loading", "lazy", vh*o.opts.LazyLoadViewports, &res.Lazy)
	o.imagePass(res, "fetchpriority", "low", vh*o.opts.LowPriorityViewports, &res.LowPriority)
}

func (o *Optimizer) imagePass(res *Result, attr, value string, threshold float64, counter *int) {
	images, err := o.doc.QuerySelectorAll("img")
	if err != nil {
		o.logger.Warn(context.Background(), err, "Image query failed", "attribute", attr)
		return
	}
	for _, img := range images {
		o.each(res, img, func() error {
			if _, ok := o.doc.GetAttribute(img, attr); ok {
				return nil
			}
			if o.registry.IsInExcludedTree(img) {
				res.Excluded++
				return nil
			}
			rect, err := o.doc.BoundingClientRect(img)
			if err != nil {
				return err
			}
			if rect.Top <= threshold {
				return nil
			}
			if err := o.doc.SetAttribute(img, attr, value); err != nil {
				return err
			}
			*counter++
			return nil
		})
	}
}

// ApplyReducedMotion collapses animations when the user prefers reduced
// motion. Protected zones keep their authored timings.
func (o *Optimizer) ApplyReducedMotion(res *Result) {
	if o.pl.Media == nil || !o.pl.Media.PrefersReducedMotion() {
		return
	}
	if o.injectStyle(ReducedMotionStyleID, o.reducedMotionCSS()) {
		res.StylesInjected = append(res.StylesInjected, ReducedMotionStyleID)
	}

	animated, err := o.doc.QuerySelectorAll(o.animationSelector())
	if err != nil {
		o.logger.Warn(context.Background(), err, "Animated element query failed")
		return
	}
	for _, n := range animated {
		o.each(res, n, func() error {
			if o.registry.IsInExcludedTree(n) {
				res.Excluded++
				return nil
			}
			if o.doc.HasClass(n, ClassMotionReduced) {
				return nil
			}
			if err := o.doc.AddClass(n, ClassMotionReduced); err != nil {
				return err
			}
			res.MotionReduced++
			return nil
		})
	}
}

func (o *Optimizer) reducedMotionCSS() string {
	zone := o.registry.Selector()
	return fmt.Sprintf(`*, *::before, *::after {
  animation-duration: 0.01ms !important;
  animation-iteration-count: 1 !important;
  transition-duration: 0.01ms !important;
  scroll-behavior: auto !important;
}
%[1]s, %[1]s *, %[1]s *::before, %[1]s *::after {
  animation-duration: initial !important;
  animation-iteration-count: initial !important;
  transition-duration: initial !important;
}
`, zone)
}

// ObserveVisibility gates animations and deferred image sources on a single
// shared intersection observer. Without intersection support, deferred
// sources are assigned and animations started immediately.
func (o *Optimizer) ObserveVisibility(res *Result) {
	targets, err := o.doc.QuerySelectorAll(o.animationSelector() + ", img[data-src]")
	if err != nil {
		o.logger.Warn(context.Background(), err, "Visibility target query failed")
		return
	}

	if o.visibility == nil && !o.ensureObserver() {
		res.VisibilityEager = true
		for _, n := range targets {
			o.each(res, n, func() error {
				if o.registry.IsInExcludedTree(n) {
					res.Excluded++
					return nil
				}
				return o.reveal(n, true)
			})
		}
		return
	}

	for _, n := range targets {
		if o.registry.IsInExcludedTree(n) {
			res.Excluded++
			continue
		}
		if o.observed[n] {
			continue
		}
		o.observed[n] = true
		o.visibility.Observe(n)
		res.Observed++
	}
}

func (o *Optimizer) ensureObserver() bool {
	ctx := context.Background()
	if o.pl.Intersections == nil {
		o.logger.Debug(ctx, "Intersection observation unavailable, revealing eagerly")
		return false
	}
	obs, err := o.pl.Intersections.NewIntersectionObserver(o.onIntersection,
		platform.IntersectionOptions{RootMargin: o.opts.RootMargin})
	if err != nil {
		o.logger.Warn(ctx, err, "Intersection observer unavailable, revealing eagerly")
		return false
	}
	o.visibility = obs
	return true
}

func (o *Optimizer) onIntersection(entries []platform.IntersectionEntry, obs platform.IntersectionObserver) {
	var res Result
	for _, e := range entries {
		n := e.Target
		o.each(&res, n, func() error {
			if o.registry.IsInExcludedTree(n) {
				return nil
			}
			if err := o.reveal(n, e.IsIntersecting); err != nil {
				return err
			}
			if e.IsIntersecting && n.Data == "img" && !o.isAnimated(n) {
				obs.Unobserve(n)
				delete(o.observed, n)
			}
			return nil
		})
	}
}

// reveal applies the visibility state to one element.
func (o *Optimizer) reveal(n *html.Node, visible bool) error {
	if visible && n.Data == "img" {
		if src, ok := o.doc.GetAttribute(n, "data-src"); ok {
			if err := o.doc.SetAttribute(n, "src", src); err != nil {
				return err
			}
			if err := o.doc.RemoveAttribute(n, "data-src"); err != nil {
				return err
			}
		}
	}
	if !o.isAnimated(n) {
		return nil
	}
	add, remove := ClassAnimationPaused, ClassAnimationRunning
	if visible {
		add, remove = ClassAnimationRunning, ClassAnimationPaused
	}
	if err := o.doc.RemoveClass(n, remove); err != nil {
		return err
	}
	return o.doc.AddClass(n, add)
}

func (o *Optimizer) isAnimated(n *html.Node) bool {
	for _, c := range o.opts.AnimationClasses {
		if o.doc.HasClass(n, c) {
			return true
		}
	}
	return false
}

func (o *Optimizer) animationSelector() string {
	parts := make([]string, 0, len(o.opts.AnimationClasses))
	for _, c := range o.opts.AnimationClasses {
		parts = append(parts, "."+c)
	}
	return strings.Join(parts, ", ")
}

// ApplyFontDisplay forces font-display: swap and marks the document once
// fonts are ready.
func (o *Optimizer) ApplyFontDisplay(res *Result) {
	if o.injectStyle(FontDisplayStyleID, "@font-face {\n  font-display: swap;\n}\n") {
		res.StylesInjected = append(res.StylesInjected, FontDisplayStyleID)
	}
	if o.fontsRequested || o.pl.Fonts == nil {
		return
	}
	o.fontsRequested = true
	o.pl.Fonts.Ready(func() {
		root := o.doc.DocumentElement()
		if root == nil {
			return
		}
		if err := o.doc.AddClass(root, ClassFontsLoaded); err != nil {
			o.logger.Warn(context.Background(), err, "Marking fonts loaded failed")
		}
	})
}

// injectStyle adds a <style id=id> to the head unless one already exists.
func (o *Optimizer) injectStyle(id, css string) bool {
	ctx := context.Background()
	existing, err := o.doc.QuerySelector("style#" + id)
	if err != nil {
		o.logger.Warn(ctx, err, "Style lookup failed", "id", id)
		return false
	}
	if existing != nil {
		return false
	}
	head := o.doc.Head()
	if head == nil {
		o.logger.Warn(ctx, perrors.NewElementError(perrors.ErrCodeMissingElement, "document has no head", nil),
			"Skipping style injection", "id", id)
		return false
	}
	style := o.doc.CreateElement("style")
	if err := o.doc.SetAttribute(style, "id", id); err != nil {
		o.logger.Warn(ctx, err, "Style injection failed", "id", id)
		return false
	}
	if err := o.doc.SetTextContent(style, css); err != nil {
		o.logger.Warn(ctx, err, "Style injection failed", "id", id)
		return false
	}
	if err := o.doc.AppendChild(head, style); err != nil {
		o.logger.Warn(ctx, err, "Style injection failed", "id", id)
		return false
	}
	return true
}

// each runs fn for one element, logging and counting failures so one bad
// element never aborts a pass.
func (o *Optimizer) each(res *Result, n *html.Node, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = perrors.FromPanic(perrors.ErrCodeElementPanic, r)
			}
		}()
		err = fn()
	}()
	if err != nil {
		res.ElementErrors++
		o.logger.Warn(context.Background(), err, "Skipping element", "element", dom.Describe(n))
	}
}
