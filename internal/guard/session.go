package guard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/conneroisu/perfguard/internal/dom"
	"github.com/conneroisu/perfguard/internal/logging"
)

// OpType classifies an intercepted call.
type OpType string

const (
	OpQuerySelector    OpType = "querySelector"
	OpQuerySelectorAll OpType = "querySelectorAll"
	OpSetAttribute     OpType = "setAttribute"
	OpSetProperty      OpType = "setProperty"
)

// ModificationRecord describes one intercepted call that touched a protected
// zone.
type ModificationRecord struct {
	Type       OpType    `json:"type" yaml:"type"`
	Method     string    `json:"method" yaml:"method"`
	TargetTag  string    `json:"target" yaml:"target"`
	Zone       string    `json:"zone" yaml:"zone"`
	Property   string    `json:"property,omitempty" yaml:"property,omitempty"`
	Value      string    `json:"value,omitempty" yaml:"value,omitempty"`
	Origin     string    `json:"origin" yaml:"origin"`
	StackTrace []string  `json:"stack_trace,omitempty" yaml:"stack_trace,omitempty"`
	Trusted    bool      `json:"trusted,omitempty" yaml:"trusted,omitempty"`
	Blocked    bool      `json:"blocked" yaml:"blocked"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// Group is every record sharing one originating frame.
type Group struct {
	Origin  string               `json:"origin" yaml:"origin"`
	Blocked int                  `json:"blocked" yaml:"blocked"`
	Records []ModificationRecord `json:"records" yaml:"records"`
}

// GroupByOrigin buckets records by origin, busiest first.
func GroupByOrigin(records []ModificationRecord) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range records {
		i, ok := index[r.Origin]
		if !ok {
			i = len(groups)
			index[r.Origin] = i
			groups = append(groups, Group{Origin: r.Origin})
		}
		groups[i].Records = append(groups[i].Records, r)
		if r.Blocked {
			groups[i].Blocked++
		}
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return len(groups[a].Records) > len(groups[b].Records)
	})
	return groups
}

// Report summarises a session.
type Report struct {
	SessionID string     `json:"session_id" yaml:"session_id"`
	StartedAt time.Time  `json:"started_at" yaml:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	Total     int        `json:"total" yaml:"total"`
	Blocked   int        `json:"blocked" yaml:"blocked"`
	Dropped   int        `json:"dropped,omitempty" yaml:"dropped,omitempty"`
	Groups    []Group    `json:"groups" yaml:"groups"`
}

// Session is one tracing activation. It owns the document that was installed
// before tracing began and the buffer of pending records.
type Session struct {
	id        string
	startedAt time.Time
	original  dom.Document
	guarded   *guardedDocument
	logger    logging.Logger
	opts      Options

	mu        sync.Mutex
	pending   []ModificationRecord
	history   []ModificationRecord
	dropped   int
	stoppedAt *time.Time

	scheduler gocron.Scheduler
}

func newSession(original dom.Document, logger logging.Logger, opts Options) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		startedAt: time.Now(),
		original:  original,
		logger:    logger.With("session_id", id),
		opts:      opts,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Original returns the document that was installed when tracing started.
func (s *Session) Original() dom.Document { return s.original }

func (s *Session) append(rec ModificationRecord) {
	s.mu.Lock()
	s.pending = append(s.pending, rec)
	s.mu.Unlock()
}

// Pending returns a copy of records not yet flushed.
func (s *Session) Pending() []ModificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ModificationRecord(nil), s.pending...)
}

// Flush drains pending records, logs them grouped by origin and forwards the
// groups to the configured flush hook.
func (s *Session) Flush(ctx context.Context) []Group {
	s.mu.Lock()
	records := s.pending
	s.pending = nil
	s.history = append(s.history, records...)
	if over := len(s.history) - s.opts.MaxHistory; over > 0 {
		s.history = append([]ModificationRecord(nil), s.history[over:]...)
		s.dropped += over
	}
	s.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	groups := GroupByOrigin(records)
	for _, g := range groups {
		fields := []interface{}{
			"origin", g.Origin,
			"count", len(g.Records),
			"blocked", g.Blocked,
			"first_target", g.Records[0].TargetTag,
		}
		if g.Blocked > 0 {
			s.logger.Warn(ctx, nil, "Blocked writes to protected zone", fields...)
		} else {
			s.logger.Info(ctx, "Protected zone access", fields...)
		}
	}
	if s.opts.OnFlush != nil {
		s.opts.OnFlush(groups)
	}
	return groups
}

// Report summarises every record seen so far, flushed or not.
func (s *Session) Report() Report {
	s.mu.Lock()
	all := append(append([]ModificationRecord(nil), s.history...), s.pending...)
	stopped := s.stoppedAt
	dropped := s.dropped
	s.mu.Unlock()

	r := Report{
		SessionID: s.id,
		StartedAt: s.startedAt,
		StoppedAt: stopped,
		Total:     len(all),
		Dropped:   dropped,
		Groups:    GroupByOrigin(all),
	}
	for _, rec := range all {
		if rec.Blocked {
			r.Blocked++
		}
	}
	return r
}

func (s *Session) startFlusher(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		s.logger.Warn(ctx, err, "Flush scheduler unavailable, records drain on stop only")
		return
	}
	flushCtx := context.WithoutCancel(ctx)
	_, err = sched.NewJob(
		gocron.DurationJob(s.opts.FlushInterval),
		gocron.NewTask(func() { s.Flush(flushCtx) }),
		gocron.WithName("guard-flush-"+s.id),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.logger.Warn(ctx, err, "Scheduling record flush failed, records drain on stop only")
		_ = sched.Shutdown()
		return
	}
	sched.Start()
	s.scheduler = sched
}

func (s *Session) stop(ctx context.Context) {
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			s.logger.Warn(ctx, err, "Stopping flush scheduler failed")
		}
		s.scheduler = nil
	}
	s.Flush(ctx)
	now := time.Now()
	s.mu.Lock()
	s.stoppedAt = &now
	s.mu.Unlock()
}
