// Package simulated provides an in-process platform over a parsed document.
// Tests and the offline CLI commands drive it explicitly: entries are emitted,
// the page is scrolled and fonts are resolved by the caller.
package simulated

import (
	"context"
	"sync"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

// DefaultEntryTypes are supported unless overridden.
var DefaultEntryTypes = []string{
	platform.EntryLargestContentfulPaint,
	platform.EntryLayoutShift,
	platform.EntryFirstInput,
	platform.EntryLongTask,
}

// Option configures a simulated platform.
type Option func(*Platform)

// WithEntryTypes restricts the observable entry types.
func WithEntryTypes(types ...string) Option {
	return func(p *Platform) {
		p.supported = make(map[string]bool, len(types))
		for _, t := range types {
			p.supported[t] = true
		}
	}
}

// WithReducedMotion sets the reduced motion preference.
func WithReducedMotion(on bool) Option {
	return func(p *Platform) { p.reducedMotion = on }
}

// WithoutIdleScheduling disables idle callbacks.
func WithoutIdleScheduling() Option {
	return func(p *Platform) { p.noIdle = true }
}

// WithoutIntersectionObserver removes the intersection capability.
func WithoutIntersectionObserver() Option {
	return func(p *Platform) { p.noIntersection = true }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Platform) { p.logger = l }
}

// Platform is a scriptable stand-in for a browser page.
type Platform struct {
	loop   *eventloop.Loop
	doc    *dom.Facade
	logger logging.Logger

	supported      map[string]bool
	reducedMotion  bool
	noIdle         bool
	noIntersection bool

	mu            sync.Mutex
	observers     map[string][]*perfObserver
	buffer        map[string][]platform.PerformanceEntry
	intersections []*intersectionObserver
	scrollY       float64
	fontsReady    bool
	fontWaiters   []func()
}

// New creates a simulated platform over doc whose callbacks run on loop.
func New(loop *eventloop.Loop, doc *dom.Facade, opts ...Option) *Platform {
	p := &Platform{
		loop:      loop,
		doc:       doc,
		logger:    logging.NewNopLogger(),
		observers: make(map[string][]*perfObserver),
		buffer:    make(map[string][]platform.PerformanceEntry),
	}
	WithEntryTypes(DefaultEntryTypes...)(p)
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("simulated_platform")
	return p
}

// Platform assembles the capability bundle.
func (p *Platform) Platform() *platform.Platform {
	pl := &platform.Platform{
		Document:  p.doc,
		Loop:      p.loop,
		Observers: p,
		Scheduler: platform.LoopScheduler{Loop: p.loop, NoIdle: p.noIdle},
		Media:     platform.StaticMedia{ReducedMotion: p.reducedMotion},
		Fonts:     p,
	}
	if !p.noIntersection {
		pl.Intersections = p
	}
	return pl
}

type perfObserver struct {
	p         *Platform
	entryType string
	cb        platform.ObserverCallback
	mu        sync.Mutex
	closed    bool
}

func (o *perfObserver) Disconnect() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.p.mu.Lock()
	defer o.p.mu.Unlock()
	list := o.p.observers[o.entryType]
	for i, cur := range list {
		if cur == o {
			o.p.observers[o.entryType] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func (o *perfObserver) deliver(entries []platform.PerformanceEntry) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if !closed {
		o.cb(entries)
	}
}

// Observe implements platform.ObserverFactory.
func (p *Platform) Observe(entryType string, buffered bool, cb platform.ObserverCallback) (platform.PerformanceObserver, error) {
	if !p.supported[entryType] {
		return nil, platform.UnsupportedEntryType(entryType)
	}
	o := &perfObserver{p: p, entryType: entryType, cb: cb}

	p.mu.Lock()
	p.observers[entryType] = append(p.observers[entryType], o)
	var backlog []platform.PerformanceEntry
	if buffered {
		backlog = append(backlog, p.buffer[entryType]...)
	}
	p.mu.Unlock()

	if len(backlog) > 0 {
		p.loop.Post(func() { o.deliver(backlog) })
	}
	return o, nil
}

// Emit records entries and delivers them as one batch to every observer of
// their type. Entries of unsupported types are dropped. Safe to call from any
// goroutine.
func (p *Platform) Emit(entries ...platform.PerformanceEntry) {
	batches := make(map[string][]platform.PerformanceEntry)
	var order []string
	for _, e := range entries {
		if !p.supported[e.EntryType] {
			p.logger.Debug(context.Background(), "Dropping unsupported entry", "entry_type", e.EntryType)
			continue
		}
		if _, ok := batches[e.EntryType]; !ok {
			order = append(order, e.EntryType)
		}
		batches[e.EntryType] = append(batches[e.EntryType], e)
	}

	p.mu.Lock()
	type delivery struct {
		obs   []*perfObserver
		batch []platform.PerformanceEntry
	}
	deliveries := make([]delivery, 0, len(order))
	for _, t := range order {
		p.buffer[t] = append(p.buffer[t], batches[t]...)
		obs := append([]*perfObserver(nil), p.observers[t]...)
		deliveries = append(deliveries, delivery{obs: obs, batch: batches[t]})
	}
	p.mu.Unlock()

	for _, d := range deliveries {
		for _, o := range d.obs {
			o := o
			batch := append([]platform.PerformanceEntry(nil), d.batch...)
			p.loop.Post(func() { o.deliver(batch) })
		}
	}
}

// Ready implements platform.FontSet.
func (p *Platform) Ready(cb func()) {
	p.mu.Lock()
	if !p.fontsReady {
		p.fontWaiters = append(p.fontWaiters, cb)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.loop.Post(cb)
}

// ResolveFonts marks fonts as loaded and runs waiting callbacks.
func (p *Platform) ResolveFonts() {
	p.mu.Lock()
	p.fontsReady = true
	waiters := p.fontWaiters
	p.fontWaiters = nil
	p.mu.Unlock()
	for _, cb := range waiters {
		p.loop.Post(cb)
	}
}

// ScrollTo moves the viewport to y and re-evaluates every intersection
// observer on the loop.
func (p *Platform) ScrollTo(y float64) {
	p.mu.Lock()
	p.scrollY = y
	observers := append([]*intersectionObserver(nil), p.intersections...)
	p.mu.Unlock()
	for _, io := range observers {
		io := io
		p.loop.Post(func() { io.evaluate(nil) })
	}
}

func (p *Platform) viewport() (top, bottom float64) {
	p.mu.Lock()
	y := p.scrollY
	p.mu.Unlock()
	return y, y + p.doc.ViewportHeight()
}

// NewIntersectionObserver implements platform.IntersectionFactory.
func (p *Platform) NewIntersectionObserver(cb platform.IntersectionCallback, opts platform.IntersectionOptions) (platform.IntersectionObserver, error) {
	if p.noIntersection {
		return nil, platform.ErrUnsupported
	}
	margin, err := platform.ParseRootMargin(opts.RootMargin)
	if err != nil {
		return nil, err
	}
	io := &intersectionObserver{
		p:         p,
		cb:        cb,
		margin:    margin,
		threshold: opts.Threshold,
		state:     make(map[*html.Node]bool),
	}
	p.mu.Lock()
	p.intersections = append(p.intersections, io)
	p.mu.Unlock()
	return io, nil
}

type intersectionObserver struct {
	p         *Platform
	cb        platform.IntersectionCallback
	margin    float64
	threshold float64

	mu      sync.Mutex
	targets []*html.Node
	state   map[*html.Node]bool
	closed  bool
}

// Observe schedules an initial evaluation of target, as browsers do.
func (io *intersectionObserver) Observe(target *html.Node) {
	io.mu.Lock()
	if io.closed {
		io.mu.Unlock()
		return
	}
	if _, ok := io.state[target]; !ok {
		io.targets = append(io.targets, target)
		io.state[target] = false
	}
	io.mu.Unlock()
	io.p.loop.Post(func() { io.evaluate(target) })
}

func (io *intersectionObserver) Unobserve(target *html.Node) {
	io.mu.Lock()
	defer io.mu.Unlock()
	if _, ok := io.state[target]; !ok {
		return
	}
	delete(io.state, target)
	for i, cur := range io.targets {
		if cur == target {
			io.targets = append(io.targets[:i], io.targets[i+1:]...)
			break
		}
	}
}

func (io *intersectionObserver) Disconnect() {
	io.mu.Lock()
	io.closed = true
	io.targets = nil
	io.state = make(map[*html.Node]bool)
	io.mu.Unlock()

	io.p.mu.Lock()
	defer io.p.mu.Unlock()
	for i, cur := range io.p.intersections {
		if cur == io {
			io.p.intersections = append(io.p.intersections[:i], io.p.intersections[i+1:]...)
			break
		}
	}
}

// evaluate runs on the loop. A nil target re-evaluates every observed
// element and reports only changes; a single target always reports.
func (io *intersectionObserver) evaluate(only *html.Node) {
	io.mu.Lock()
	if io.closed {
		io.mu.Unlock()
		return
	}
	targets := io.targets
	if only != nil {
		targets = []*html.Node{only}
	}
	targets = append([]*html.Node(nil), targets...)
	io.mu.Unlock()

	top, bottom := io.p.viewport()
	top -= io.margin
	bottom += io.margin

	var changed []platform.IntersectionEntry
	for _, n := range targets {
		io.mu.Lock()
		prev, observed := io.state[n]
		io.mu.Unlock()
		if !observed {
			continue
		}
		rect, err := io.p.doc.BoundingClientRect(n)
		if err != nil {
			io.p.logger.Debug(context.Background(), "No geometry for observed element", "element", dom.Describe(n))
			continue
		}
		ratio := visibleRatio(rect, top, bottom)
		visible := (ratio > 0 && ratio >= io.threshold) ||
			(rect.Height == 0 && rect.Top >= top && rect.Top <= bottom)
		if only == nil && visible == prev {
			continue
		}
		io.mu.Lock()
		io.state[n] = visible
		io.mu.Unlock()
		changed = append(changed, platform.IntersectionEntry{Target: n, IsIntersecting: visible, IntersectionRatio: ratio})
	}
	if len(changed) > 0 {
		io.cb(changed, io)
	}
}

func visibleRatio(r dom.Rect, top, bottom float64) float64 {
	if r.Height <= 0 {
		return 0
	}
	lo := max(r.Top, top)
	hi := min(r.Bottom(), bottom)
	if hi <= lo {
		return 0
	}
	return (hi - lo) / r.Height
}
