package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/conneroisu/perfguard/internal/config"
	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/optimizer"
	"github.com/conneroisu/perfguard/internal/performance"
	"github.com/conneroisu/perfguard/internal/platform/simulated"
)

// optimizedSuffix marks files written by optimize and watch.
const optimizedSuffix = ".optimized"

// drainTimeout bounds one offline pipeline run.
const drainTimeout = 30 * time.Second

// commandContext returns the command context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(cfg.LoggerConfig(os.Stderr))
	if cfg.Logging.File == "" {
		return cfg, logger, nil
	}

	f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, perrors.WrapIO(err, perrors.ErrCodeFileAccess, "open log file "+cfg.Logging.File)
	}
	fileCfg := cfg.LoggerConfig(f)
	fileCfg.Format = "json"
	return cfg, logging.NewMultiLogger(logger, logging.NewLogger(fileCfg)), nil
}

// loadPage parses an HTML file and attaches a layout: the YAML layout file
// when one is configured, with the flow estimate as fallback.
func loadPage(path, layoutPath string, cfg *config.Config) (*dom.HTMLDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.WrapIO(err, perrors.ErrCodeFileAccess, "open "+path)
	}
	defer f.Close()

	if layoutPath == "" {
		layoutPath = cfg.Viewport.Layout
	}
	height := cfg.Viewport.Height
	flow := dom.NewFlowLayout(cfg.Viewport.ImageHeight, cfg.Viewport.BlockHeight)
	var layout dom.Layout = flow

	if layoutPath != "" {
		data, err := os.ReadFile(layoutPath)
		if err != nil {
			return nil, perrors.WrapIO(err, perrors.ErrCodeFileAccess, "read layout "+layoutPath)
		}
		spec, err := dom.ParseLayoutSpec(data)
		if err != nil {
			return nil, err
		}
		measured, err := dom.NewSelectorLayout(spec.Elements)
		if err != nil {
			return nil, err
		}
		if spec.ViewportHeight > 0 {
			height = spec.ViewportHeight
		}
		layout = dom.ChainLayout{measured, flow}
	}

	doc, err := dom.Parse(f, dom.WithViewportHeight(height), dom.WithLayout(layout))
	if err != nil {
		return nil, perrors.WrapIO(err, perrors.ErrCodeParse, "parse "+path)
	}
	return doc, nil
}

// pipeline is one page wired to the performance core over the simulated
// platform.
type pipeline struct {
	cfg    *config.Config
	logger logging.Logger
	doc    *dom.HTMLDocument
	facade *dom.Facade
	loop   *eventloop.Loop
	sim    *simulated.Platform
}

func newPipeline(cfg *config.Config, logger logging.Logger, doc *dom.HTMLDocument, reducedMotion bool) *pipeline {
	loop := eventloop.New(logger)
	facade := dom.NewFacade(doc)
	return &pipeline{
		cfg:    cfg,
		logger: logger,
		doc:    doc,
		facade: facade,
		loop:   loop,
		sim: simulated.New(loop, facade,
			simulated.WithReducedMotion(reducedMotion),
			simulated.WithLogger(logger)),
	}
}

func (p *pipeline) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()
	return p.loop.RunUntilIdle(ctx)
}

// optimize runs InitPerformanceMonitoring to completion, including the
// deferred preload and font readiness.
func (p *pipeline) optimize(ctx context.Context, reporter metrics.Reporter) (optimizer.Result, error) {
	mon := performance.NewMonitor(p.sim.Platform(), reporter, p.cfg.Registry(), p.logger, p.cfg.MonitorOptions())
	defer mon.Shutdown()

	mon.InitPerformanceMonitoring()
	if err := p.drain(ctx); err != nil {
		return optimizer.Result{}, err
	}
	p.sim.ResolveFonts()
	if err := p.drain(ctx); err != nil {
		return optimizer.Result{}, err
	}

	res, ok := mon.Result()
	if !ok {
		return res, perrors.NewInternalError(perrors.ErrCodeInternalError, "optimizer did not run", nil)
	}
	return res, nil
}

func (p *pipeline) close() {
	p.loop.Close()
}

// outputPath returns page.optimized.html next to page.html.
func outputPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + optimizedSuffix + ext
}

// optimizeFile is the optimize command body, shared with watch.
func optimizeFile(ctx context.Context, cfg *config.Config, logger logging.Logger, in, out, layoutPath string, reducedMotion bool) (optimizer.Result, error) {
	doc, err := loadPage(in, layoutPath, cfg)
	if err != nil {
		return optimizer.Result{}, err
	}
	p := newPipeline(cfg, logger, doc, reducedMotion)
	defer p.close()

	res, err := p.optimize(ctx, metrics.NewLogReporter(logger))
	if err != nil {
		return res, err
	}

	if out == "-" {
		return res, doc.Render(os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return res, perrors.WrapIO(err, perrors.ErrCodeFileAccess, "create "+out)
	}
	defer f.Close()
	if err := doc.Render(f); err != nil {
		return res, perrors.WrapIO(err, perrors.ErrCodeFileAccess, "write "+out)
	}
	return res, nil
}

// streamSamples prints every sample the store receives until stop is called.
// stop returns once the printed output is complete.
func streamSamples(store *performance.SampleStore, w io.Writer) (stop func()) {
	ch, cancel := store.Subscribe(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range ch {
			fmt.Fprintf(w, "  %-12s %-28s %10.3f %s\n", s.Kind, s.Name, s.Value, s.Kind.Unit())
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// sampleReporter returns the store, teed into a Prometheus registry when
// exposition is requested.
func sampleReporter(cfg *config.Config, promOut string) (*performance.SampleStore, metrics.Reporter, *prometheus.Registry) {
	store := cfg.NewSampleStore()
	if promOut == "" && !cfg.Metrics.Prometheus {
		return store, store, nil
	}
	reg := prometheus.NewRegistry()
	return store, metrics.MultiReporter{store, metrics.NewPrometheusReporter(reg)}, reg
}

// writePrometheus writes the text exposition of reg to path, or stderr when
// path is empty.
func writePrometheus(reg *prometheus.Registry, path string) error {
	if reg == nil {
		return nil
	}
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	w := os.Stderr
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return perrors.WrapIO(err, perrors.ErrCodeFileAccess, "create "+path)
		}
		defer f.Close()
		w = f
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
