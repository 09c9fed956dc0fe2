package chrome

import (
	"context"
	"encoding/json"
	"sync"

	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

type payload struct {
	Kind    string                      `json:"kind"`
	Type    string                      `json:"type"`
	Entries []platform.PerformanceEntry `json:"entries"`
}

// dispatcher fans binding payloads out to Go observers on the event loop.
type dispatcher struct {
	loop   *eventloop.Loop
	logger logging.Logger

	mu          sync.Mutex
	supported   map[string]bool
	observers   map[string][]*observer
	buffer      map[string][]platform.PerformanceEntry
	fontsReady  bool
	fontWaiters []func()
}

func newDispatcher(loop *eventloop.Loop, logger logging.Logger) *dispatcher {
	return &dispatcher{
		loop:      loop,
		logger:    logger,
		supported: make(map[string]bool),
		observers: make(map[string][]*observer),
		buffer:    make(map[string][]platform.PerformanceEntry),
	}
}

func (d *dispatcher) setSupported(types []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range types {
		d.supported[t] = true
	}
}

// SupportedEntryTypes lists the entry types the page accepted.
func (d *dispatcher) SupportedEntryTypes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.supported))
	for t := range d.supported {
		out = append(out, t)
	}
	return out
}

func (d *dispatcher) handlePayload(raw []byte) error {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return perrors.Wrap(err, perrors.ErrorTypeValidation, perrors.ErrCodeValidationFailed, "decode binding payload")
	}
	switch p.Kind {
	case "fonts":
		d.resolveFonts()
	case "entries":
		d.deliver(p.Type, p.Entries)
	default:
		d.logger.Debug(context.Background(), "Ignoring binding payload", "kind", p.Kind)
	}
	return nil
}

func (d *dispatcher) deliver(entryType string, entries []platform.PerformanceEntry) {
	if len(entries) == 0 {
		return
	}
	d.mu.Lock()
	d.buffer[entryType] = append(d.buffer[entryType], entries...)
	targets := append([]*observer(nil), d.observers[entryType]...)
	d.mu.Unlock()

	for _, o := range targets {
		o := o
		batch := append([]platform.PerformanceEntry(nil), entries...)
		d.loop.Post(func() { o.deliver(batch) })
	}
}

// Observe implements platform.ObserverFactory. Entries that arrived before
// the observer was created are replayed when buffered is set.
func (d *dispatcher) Observe(entryType string, buffered bool, cb platform.ObserverCallback) (platform.PerformanceObserver, error) {
	d.mu.Lock()
	if !d.supported[entryType] {
		d.mu.Unlock()
		return nil, platform.UnsupportedEntryType(entryType)
	}
	o := &observer{d: d, entryType: entryType, cb: cb}
	d.observers[entryType] = append(d.observers[entryType], o)
	var backlog []platform.PerformanceEntry
	if buffered {
		backlog = append(backlog, d.buffer[entryType]...)
	}
	d.mu.Unlock()

	if len(backlog) > 0 {
		d.loop.Post(func() { o.deliver(backlog) })
	}
	return o, nil
}

// Ready implements platform.FontSet.
func (d *dispatcher) Ready(cb func()) {
	d.mu.Lock()
	if !d.fontsReady {
		d.fontWaiters = append(d.fontWaiters, cb)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.loop.Post(cb)
}

func (d *dispatcher) resolveFonts() {
	d.mu.Lock()
	if d.fontsReady {
		d.mu.Unlock()
		return
	}
	d.fontsReady = true
	waiters := d.fontWaiters
	d.fontWaiters = nil
	d.mu.Unlock()
	for _, cb := range waiters {
		d.loop.Post(cb)
	}
}

type observer struct {
	d         *dispatcher
	entryType string
	cb        platform.ObserverCallback

	mu     sync.Mutex
	closed bool
}

func (o *observer) deliver(entries []platform.PerformanceEntry) {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if !closed {
		o.cb(entries)
	}
}

func (o *observer) Disconnect() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	list := o.d.observers[o.entryType]
	for i, cur := range list {
		if cur == o {
			o.d.observers[o.entryType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
