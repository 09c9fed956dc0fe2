// Package eventloop runs every DOM-touching callback on one goroutine.
//
// Platform callbacks (observer batches, intersection changes, timers, idle
// callbacks and font readiness) are posted to a Loop and executed one at a
// time, so the document never sees concurrent access. Idle callbacks run when
// the task queue drains or when their timeout elapses, whichever comes first,
// and never more than once.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/logging"
)

var (
	// ErrClosed is returned when work is submitted to a closed loop.
	ErrClosed = perrors.NewInternalError("ERR_LOOP_CLOSED", "event loop is closed", nil)
	// ErrRunning is returned when a second goroutine tries to drive the loop.
	ErrRunning = perrors.NewInternalError("ERR_LOOP_RUNNING", "event loop is already running", nil)
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// IdleFunc receives true when it runs because its timeout elapsed rather than
// because the loop went idle.
type IdleFunc func(didTimeout bool)

type idleTask struct {
	fn    IdleFunc
	timer *time.Timer
	done  bool
}

// Loop is a single-goroutine task queue with timers and idle scheduling.
type Loop struct {
	logger logging.Logger

	mu      sync.Mutex
	queue   []Task
	idle    []*idleTask
	pending int // armed timers not yet resolved
	closed  bool

	wake    chan struct{}
	running atomic.Bool
}

// New creates a loop. Nothing executes until Run or RunUntilIdle is called.
func New(logger logging.Logger) *Loop {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loop{
		logger: logger.WithComponent("eventloop"),
		wake:   make(chan struct{}, 1),
	}
}

// Post appends task to the queue. It reports false when the loop is closed.
func (l *Loop) Post(task Task) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.signal()
	return true
}

// Call posts task and blocks until it has run. It must not be invoked from
// the loop goroutine.
func (l *Loop) Call(ctx context.Context, task Task) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		task()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc posts task once d has elapsed. The returned function cancels it
// if it has not fired yet.
func (l *Loop) AfterFunc(d time.Duration, task Task) (cancel func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return func() {}
	}
	l.pending++
	l.mu.Unlock()

	timer := time.AfterFunc(d, func() {
		l.mu.Lock()
		l.pending--
		if !l.closed {
			l.queue = append(l.queue, task)
		}
		l.mu.Unlock()
		l.signal()
	})

	return func() {
		if timer.Stop() {
			l.mu.Lock()
			l.pending--
			l.mu.Unlock()
			l.signal()
		}
	}
}

// RequestIdle schedules fn for the next moment the queue is empty. When
// timeout is positive, fn is queued as an ordinary task once the timeout
// elapses if the loop has not gone idle by then. fn runs exactly once unless
// cancelled first.
func (l *Loop) RequestIdle(fn IdleFunc, timeout time.Duration) (cancel func()) {
	it := &idleTask{fn: fn}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return func() {}
	}
	l.idle = append(l.idle, it)
	if timeout > 0 {
		l.pending++
		it.timer = time.AfterFunc(timeout, func() { l.idleTimeout(it) })
	}
	l.mu.Unlock()
	l.signal()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if it.done {
			return
		}
		it.done = true
		l.removeIdle(it)
		if it.timer != nil && it.timer.Stop() {
			l.pending--
		}
	}
}

func (l *Loop) idleTimeout(it *idleTask) {
	l.mu.Lock()
	l.pending--
	if it.done || l.closed {
		l.mu.Unlock()
		l.signal()
		return
	}
	it.done = true
	l.removeIdle(it)
	l.queue = append(l.queue, func() { it.fn(true) })
	l.mu.Unlock()
	l.signal()
}

// removeIdle must be called with l.mu held.
func (l *Loop) removeIdle(it *idleTask) {
	for i, cur := range l.idle {
		if cur == it {
			l.idle = append(l.idle[:i], l.idle[i+1:]...)
			return
		}
	}
}

// Run executes tasks until ctx is cancelled or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	for {
		if l.step() {
			continue
		}
		if l.isClosed() {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunUntilIdle executes tasks on the calling goroutine until the queue is
// empty, no idle callback is waiting and no timer is armed.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.step() {
			continue
		}
		l.mu.Lock()
		pending := l.pending
		closed := l.closed
		l.mu.Unlock()
		if pending == 0 || closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close drops queued work, cancels timers and rejects further posts.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	for _, it := range l.idle {
		it.done = true
		if it.timer != nil && it.timer.Stop() {
			l.pending--
		}
	}
	l.idle = nil
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// step runs one queued task, or one idle callback if the queue is empty.
func (l *Loop) step() bool {
	l.mu.Lock()
	if len(l.queue) > 0 {
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.exec(task)
		return true
	}
	if len(l.idle) > 0 {
		it := l.idle[0]
		l.idle = l.idle[1:]
		it.done = true
		if it.timer != nil && it.timer.Stop() {
			l.pending--
		}
		l.mu.Unlock()
		l.exec(func() { it.fn(false) })
		return true
	}
	l.mu.Unlock()
	return false
}

func (l *Loop) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(context.Background(), perrors.FromPanic(perrors.ErrCodeInternalError, r),
				"event loop task panicked")
		}
	}()
	task()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
