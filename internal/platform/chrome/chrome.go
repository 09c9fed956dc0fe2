// Package chrome connects the performance core to a real Chrome page over the
// DevTools protocol. Native PerformanceObserver batches are pushed back into
// Go through a runtime binding and delivered on the event loop.
package chrome

import (
	"context"
	_ "embed"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/logging"
)

const bindingName = "__perfguard_binding"

//go:embed observer.js
var observerJS string

//go:embed snapshot.js
var snapshotJS string

// Config configures the browser session.
type Config struct {
	// RemoteURL is the DevTools websocket of a running Chrome. Empty launches
	// a local browser.
	RemoteURL         string
	Headless          bool
	Stealth           bool
	NavigationTimeout time.Duration
	// ReducedMotion emulates prefers-reduced-motion: reduce on the page.
	ReducedMotion bool
	// SnapshotLimit bounds the number of measured elements.
	SnapshotLimit int
}

func (c *Config) defaults() {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.SnapshotLimit <= 0 {
		c.SnapshotLimit = 5000
	}
}

// Session is one page open in Chrome.
type Session struct {
	cfg    Config
	logger logging.Logger

	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page

	ctx    context.Context
	cancel context.CancelFunc

	*dispatcher
}

// Open launches or connects to Chrome, opens url and installs the performance
// observers. Callbacks are posted to loop.
func Open(ctx context.Context, url string, cfg Config, loop *eventloop.Loop, logger logging.Logger) (*Session, error) {
	cfg.defaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.WithComponent("chrome")

	s := &Session{
		cfg:        cfg,
		logger:     logger,
		dispatcher: newDispatcher(loop, logger),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.launch(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openPage(ctx, url); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) launch() error {
	controlURL := s.cfg.RemoteURL
	if controlURL == "" {
		l := launcher.New().Headless(s.cfg.Headless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return perrors.NewNetworkError(perrors.ErrCodeBrowser, "launch chrome", err)
		}
		controlURL = u
		s.lnch = l
		s.logger.Info(s.ctx, "Launched local chrome", "url", controlURL)
	} else {
		s.logger.Info(s.ctx, "Connecting to remote chrome", "url", controlURL)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return perrors.NewNetworkError(perrors.ErrCodeBrowser, "connect to chrome", err)
	}
	s.browser = b
	return nil
}

func (s *Session) openPage(ctx context.Context, url string) error {
	var (
		page *rod.Page
		err  error
	)
	if s.cfg.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return perrors.NewNetworkError(perrors.ErrCodeBrowser, "create page", err)
	}
	s.page = page

	if s.cfg.ReducedMotion {
		err := proto.EmulationSetEmulatedMedia{
			Features: []*proto.EmulationMediaFeature{{Name: "prefers-reduced-motion", Value: "reduce"}},
		}.Call(page)
		if err != nil {
			s.logger.Warn(ctx, err, "Reduced motion emulation failed")
		}
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		s.logger.Warn(ctx, err, "Adding performance binding failed, metrics unavailable")
	} else {
		go s.listen()
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		return perrors.NewNetworkError(perrors.ErrCodeBrowser, "navigate "+url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.logger.Warn(ctx, err, "Wait for load timed out", "url", url)
	}

	res, err := page.Context(ctx).Eval(observerJS)
	if err != nil {
		s.logger.Warn(ctx, err, "Installing performance observers failed")
		return nil
	}
	var types []string
	for _, v := range res.Value.Arr() {
		types = append(types, v.Str())
	}
	s.setSupported(types)
	s.logger.Debug(ctx, "Performance observers installed", "entry_types", types)
	return nil
}

// listen forwards binding calls until the session closes.
func (s *Session) listen() {
	s.page.Context(s.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		if err := s.handlePayload([]byte(e.Payload)); err != nil {
			s.logger.Warn(s.ctx, err, "Malformed performance payload")
		}
	})()
}

// Snapshot serialises the live DOM together with measured element geometry.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	res, err := s.page.Context(ctx).Eval(snapshotJS, s.cfg.SnapshotLimit)
	if err != nil {
		return nil, perrors.NewNetworkError(perrors.ErrCodeBrowser, "snapshot page", err)
	}
	return DecodeSnapshot([]byte(res.Value.Str()))
}

// Close tears down the page and the browser if it was launched locally.
func (s *Session) Close() {
	s.cancel()
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			s.logger.Debug(context.Background(), "Closing page failed", "error", err)
		}
	}
	if s.browser != nil && s.lnch != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Debug(context.Background(), "Closing browser failed", "error", err)
		}
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
}
