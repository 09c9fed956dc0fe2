package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/perfguard/internal/config"
	"github.com/conneroisu/perfguard/internal/dom"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/optimizer"
	"github.com/conneroisu/perfguard/internal/platform"
	"github.com/conneroisu/perfguard/internal/platform/chrome"
)

var auditCmd = &cobra.Command{
	Use:   "audit <url>",
	Short: "Measure a live page in Chrome and optimize a snapshot",
	Long: `Open a page in Chrome, collect Core Web Vitals from the browser's own
PerformanceObserver for a while, then snapshot the DOM with measured element
geometry and run the optimizer over the snapshot.

Chrome is launched locally unless chrome.remote_url (or --remote) points at
a running DevTools endpoint. --stealth hides the automation fingerprint.

Examples:
  perfguard audit https://example.com
  perfguard audit https://example.com --collect-for 15s --format json
  perfguard audit https://example.com --live       # stream samples while collecting
  perfguard audit https://example.com --remote ws://127.0.0.1:9222/devtools/browser/...
  perfguard audit https://example.com --save snapshot.optimized.html`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

var (
	auditFlags         OutputFlags
	auditRemote        string
	auditStealth       bool
	auditHeadful       bool
	auditReducedMotion bool
	auditCollectFor    time.Duration
	auditSave          string
	auditPromOut       string
	auditLive          bool
)

func init() {
	rootCmd.AddCommand(auditCmd)

	addOutputFlags(auditCmd, &auditFlags, "text", "json", "yaml")
	auditCmd.Flags().StringVar(&auditRemote, "remote", "", "DevTools URL of a running Chrome")
	auditCmd.Flags().BoolVar(&auditStealth, "stealth", false, "Open the page with stealth evasions")
	auditCmd.Flags().BoolVar(&auditHeadful, "headful", false, "Show the browser window")
	auditCmd.Flags().BoolVar(&auditReducedMotion, "reduced-motion", false, "Emulate prefers-reduced-motion: reduce")
	auditCmd.Flags().DurationVar(&auditCollectFor, "collect-for", 0, "How long to collect metrics (default chrome.collect_for)")
	auditCmd.Flags().StringVar(&auditSave, "save", "", "Write the optimized snapshot HTML to this file")
	auditCmd.Flags().StringVar(&auditPromOut, "prom-out", "", "Write Prometheus text exposition to this file")
	auditCmd.Flags().BoolVar(&auditLive, "live", false, "Print samples to stderr as they arrive")
}

// chromeConfig applies command flags over the chrome section.
func chromeConfig(cmd *cobra.Command, cfg *config.Config) chrome.Config {
	cc := chrome.Config{
		RemoteURL:         cfg.Chrome.RemoteURL,
		Headless:          cfg.Chrome.Headless,
		Stealth:           cfg.Chrome.Stealth,
		NavigationTimeout: cfg.Chrome.NavigationTimeout,
		ReducedMotion:     cfg.Chrome.ReducedMotion,
		SnapshotLimit:     cfg.Chrome.SnapshotLimit,
	}
	if cmd.Flags().Changed("remote") {
		cc.RemoteURL = auditRemote
	}
	if cmd.Flags().Changed("stealth") {
		cc.Stealth = auditStealth
	}
	if cmd.Flags().Changed("headful") {
		cc.Headless = !auditHeadful
	}
	if cmd.Flags().Changed("reduced-motion") {
		cc.ReducedMotion = auditReducedMotion
	}
	return cc
}

// auditReport is printed by the audit command.
type auditReport struct {
	metricsReport `yaml:",inline"`
	Optimization  optimizer.Result `json:"optimization" yaml:"optimization"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	url := args[0]
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	collectFor := cfg.Chrome.CollectFor
	if auditCollectFor > 0 {
		collectFor = auditCollectFor
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	loop := eventloop.New(logger)
	defer loop.Close()
	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error(ctx, err, "Event loop stopped")
		}
	}()

	sess, err := chrome.Open(ctx, url, chromeConfig(cmd, cfg), loop, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	defer sess.Close()

	store, reporter, reg := sampleReporter(cfg, auditPromOut)
	collector := metrics.NewCollector(sess, reporter, logger,
		metrics.Options{LongTaskThreshold: cfg.Metrics.LongTaskThreshold})
	if err := loop.Call(ctx, func() { collector.Start() }); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Collecting metrics for %s...\n", collectFor)
	stopLive := func() {}
	if auditLive {
		stopLive = streamSamples(store, cmd.ErrOrStderr())
	}
	defer stopLive()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(collectFor):
	}
	if err := loop.Call(ctx, collector.Stop); err != nil {
		return err
	}
	stopLive()

	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return err
	}
	doc, err := snap.Document()
	if err != nil {
		return err
	}

	facade := dom.NewFacade(doc)
	pl := &platform.Platform{
		Document:  facade,
		Loop:      loop,
		Scheduler: platform.LoopScheduler{Loop: loop},
		Media:     platform.StaticMedia{ReducedMotion: snap.ReducedMotion},
	}
	opt := optimizer.New(pl, cfg.Registry(), logger, cfg.OptimizerOptions())
	var res optimizer.Result
	if err := loop.Call(ctx, func() { res = opt.Run() }); err != nil {
		return err
	}
	if err := loop.Call(ctx, opt.Stop); err != nil {
		return err
	}

	if auditSave != "" {
		f, err := os.Create(auditSave)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := doc.Render(f); err != nil {
			return err
		}
	}
	if err := writePrometheus(reg, auditPromOut); err != nil {
		return err
	}

	report := auditReport{
		metricsReport: metricsReport{
			Source:     url,
			Samples:    store.Samples("", time.Time{}),
			Aggregates: store.Aggregates(),
		},
		Optimization: res,
	}

	w, closeOut, err := auditFlags.writer(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if auditFlags.Format == "text" {
		writeMetricsText(w, report.metricsReport)
		fmt.Fprintln(w, "\nOptimization of snapshot")
		printResult(w, res)
		return nil
	}
	return encode(w, auditFlags.Format, report)
}
