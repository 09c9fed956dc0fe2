package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/eventloop"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/performance"
	"github.com/conneroisu/perfguard/internal/platform"
	"github.com/conneroisu/perfguard/internal/platform/simulated"
)

var replayCmd = &cobra.Command{
	Use:   "replay <entries.json|entries.yaml>",
	Short: "Feed recorded performance entries through the collector",
	Long: `Replay a recorded list of performance entries through the metric
collector and print the samples it reports together with per-kind
aggregates (count, min, max, average, p95, p99).

The file holds an "entries" list; each entry has entry_type
(largest-contentful-paint, layout-shift, first-input, longtask),
start_time, duration, and for layout shifts value and had_recent_input.

Examples:
  perfguard replay entries.yaml
  perfguard replay entries.json --format json
  perfguard replay entries.yaml --prom-out metrics.prom`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayFlags   OutputFlags
	replayPromOut string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	addOutputFlags(replayCmd, &replayFlags, "text", "json", "yaml")
	replayCmd.Flags().StringVar(&replayPromOut, "prom-out", "", "Write Prometheus text exposition to this file")
}

// entryLog is the on-disk replay format.
type entryLog struct {
	Entries []platform.PerformanceEntry `json:"entries" yaml:"entries"`
}

// metricsReport is the output of replay and audit.
type metricsReport struct {
	Source     string                  `json:"source" yaml:"source"`
	Samples    []metrics.Sample        `json:"samples" yaml:"samples"`
	Aggregates []performance.Aggregate `json:"aggregates" yaml:"aggregates"`
}

func readEntryLog(path string) ([]platform.PerformanceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.WrapIO(err, perrors.ErrCodeFileAccess, "read "+path)
	}
	var log entryLog
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &log)
	default:
		err = yaml.Unmarshal(data, &log)
	}
	if err != nil {
		return nil, perrors.WrapIO(err, perrors.ErrCodeParse, "decode "+path)
	}
	return log.Entries, nil
}

// replayEntries runs entries through a collector on a blank simulated page.
func replayEntries(cmd *cobra.Command, entries []platform.PerformanceEntry, reporter metrics.Reporter, opts metrics.Options, logger logging.Logger) error {
	doc, err := dom.ParseString("<html><head></head><body></body></html>")
	if err != nil {
		return err
	}
	loop := eventloop.New(logger)
	defer loop.Close()
	sim := simulated.New(loop, dom.NewFacade(doc), simulated.WithLogger(logger))

	collector := metrics.NewCollector(sim, reporter, logger, opts)
	ctx := commandContext(cmd)
	loop.Post(func() { collector.Start() })
	if err := loop.RunUntilIdle(ctx); err != nil {
		return err
	}
	sim.Emit(entries...)
	if err := loop.RunUntilIdle(ctx); err != nil {
		return err
	}
	collector.Stop()
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	in := args[0]
	if err := ValidateFileExists(in); err != nil {
		return err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	entries, err := readEntryLog(in)
	if err != nil {
		return err
	}
	store, reporter, reg := sampleReporter(cfg, replayPromOut)

	opts := metrics.Options{LongTaskThreshold: cfg.Metrics.LongTaskThreshold}
	if err := replayEntries(cmd, entries, reporter, opts, logger); err != nil {
		return fmt.Errorf("failed to replay %s: %w", in, err)
	}

	report := metricsReport{
		Source:     in,
		Samples:    store.Samples("", time.Time{}),
		Aggregates: store.Aggregates(),
	}
	if err := writePrometheus(reg, replayPromOut); err != nil {
		return err
	}

	w, closeOut, err := replayFlags.writer(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if replayFlags.Format == "text" {
		writeMetricsText(w, report)
		return nil
	}
	return encode(w, replayFlags.Format, report)
}

func writeMetricsText(w io.Writer, r metricsReport) {
	fmt.Fprintf(w, "Samples from %s\n", r.Source)
	for _, s := range r.Samples {
		fmt.Fprintf(w, "  %-12s %-28s %10.3f %s\n", s.Kind, s.Name, s.Value, s.Kind.Unit())
	}
	if len(r.Samples) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	fmt.Fprintln(w, "\nAggregates")
	fmt.Fprintf(w, "  %-12s %6s %10s %10s %10s %10s %10s\n", "kind", "count", "min", "max", "avg", "p95", "p99")
	for _, a := range r.Aggregates {
		fmt.Fprintf(w, "  %-12s %6d %10.3f %10.3f %10.3f %10.3f %10.3f\n", a.Kind, a.Count, a.Min, a.Max, a.Avg, a.P95, a.P99)
	}
}
