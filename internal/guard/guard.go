// Package guard watches DOM access aimed at protected zones and vetoes
// layout-affecting writes to them.
//
// Tracing installs a decorator over the document facade and uninstalls it on
// stop. The veto is best effort: anything that reaches the underlying tree
// without going through the facade is invisible to the guard.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/logging"
)

var (
	// ErrAlreadyTracing is returned with the active session when tracing is
	// started twice.
	ErrAlreadyTracing = perrors.NewGuardError(perrors.ErrCodeAlreadyTracing, "mutation guard is already tracing", nil)
	// ErrNotTracing is returned when stopping an inactive guard.
	ErrNotTracing = perrors.NewGuardError(perrors.ErrCodeNotTracing, "mutation guard is not tracing", nil)
)

// Default veto lists.
var (
	DefaultVetoProperties = []string{
		"display", "flex", "flex-grow", "flex-shrink", "flex-basis", "flex-direction", "position",
	}
	DefaultVetoAttributes = []string{"style", "class"}
)

// Options tunes interception.
type Options struct {
	FlushInterval time.Duration
	// TrustedCallers are function name prefixes whose writes are never vetoed,
	// e.g. "github.com/acme/site/components/hero.".
	TrustedCallers []string
	VetoProperties []string
	VetoAttributes []string
	// StackDepth bounds captured frames per record.
	StackDepth int
	// MaxHistory bounds records retained for Report after flushing.
	MaxHistory int
	// OnRecord observes every record as it is created.
	OnRecord func(ModificationRecord)
	// OnFlush receives each non-empty flush.
	OnFlush func([]Group)
}

func (o *Options) defaults() {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.VetoProperties == nil {
		o.VetoProperties = DefaultVetoProperties
	}
	if o.VetoAttributes == nil {
		o.VetoAttributes = DefaultVetoAttributes
	}
	if o.StackDepth <= 0 {
		o.StackDepth = 16
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = 10000
	}
}

// Guard moves between inactive and tracing. At most one session is active.
type Guard struct {
	facade   *dom.Facade
	registry *exclusion.Registry
	logger   logging.Logger
	opts     Options

	mu     sync.Mutex
	active *Session
}

// New creates an inactive guard over facade.
func New(facade *dom.Facade, registry *exclusion.Registry, logger logging.Logger, opts Options) *Guard {
	opts.defaults()
	if registry == nil {
		registry = exclusion.Default()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Guard{
		facade:   facade,
		registry: registry,
		logger:   logger.WithComponent("guard"),
		opts:     opts,
	}
}

// Active returns the running session, or nil.
func (g *Guard) Active() *Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// StartTracing installs the interception decorator. When tracing is already
// active, or the facade already holds a guard decorator, the existing session
// is returned with ErrAlreadyTracing and nothing is wrapped again. If the
// decorator cannot be installed the document is left untouched and the error
// is returned after logging a warning.
func (g *Guard) StartTracing(ctx context.Context) (sess *Session, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil {
		g.logger.Warn(ctx, ErrAlreadyTracing, "Tracing already active", "session_id", g.active.id)
		return g.active, ErrAlreadyTracing
	}

	current := g.facade.Current()
	if gd, ok := current.(*guardedDocument); ok {
		g.logger.Warn(ctx, ErrAlreadyTracing, "Document already wrapped by another guard", "session_id", gd.session.id)
		return gd.session, ErrAlreadyTracing
	}

	defer func() {
		if r := recover(); r != nil {
			err = perrors.NewGuardError(perrors.ErrCodeInternalError, "install mutation guard",
				perrors.FromPanic(perrors.ErrCodeInternalError, r))
			g.logger.Warn(ctx, err, "Guard installation panicked, document left unwrapped")
			if sess != nil && sess.guarded != nil {
				_ = g.facade.Swap(sess.guarded, current)
			}
			sess = nil
		}
	}()

	sess = newSession(current, g.logger, g.opts)
	sess.guarded = &guardedDocument{inner: current, session: sess, registry: g.registry}
	if err := g.facade.Swap(current, sess.guarded); err != nil {
		g.logger.Warn(ctx, err, "Could not install mutation guard, document left unwrapped")
		return nil, perrors.NewGuardError(perrors.ErrCodeFacadeSealed, "install mutation guard", err)
	}

	sess.startFlusher(ctx)
	g.active = sess
	g.logger.Info(ctx, "Tracing started", "session_id", sess.id,
		"flush_interval", g.opts.FlushInterval.String())
	return sess, nil
}

// StopTracing restores the original document, stops the flush job and drains
// the remaining records.
func (g *Guard) StopTracing(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess := g.active
	if sess == nil {
		return ErrNotTracing
	}
	g.active = nil

	// Pass-through from here on even if the swap below fails.
	sess.guarded.disable()
	restoreErr := g.facade.Swap(sess.guarded, sess.original)
	if restoreErr != nil {
		g.logger.Error(ctx, restoreErr, "Could not restore original document, decorator left disabled",
			"session_id", sess.id)
	}

	sess.stop(ctx)
	report := sess.Report()
	g.logger.Info(ctx, "Tracing stopped", "session_id", sess.id,
		"records", report.Total, "blocked", report.Blocked)

	if restoreErr != nil {
		return perrors.NewGuardError(perrors.ErrCodeInternalError, "restore original document", restoreErr)
	}
	return nil
}
