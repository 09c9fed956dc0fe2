package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/perfguard/internal/guard"
	"github.com/conneroisu/perfguard/internal/metrics"
)

var traceCmd = &cobra.Command{
	Use:   "trace <file.html>",
	Short: "Report writes into protected components",
	Long: `Load a page, install the mutation guard, run the optimizer and then replay
a hostile script that tries to collapse, reposition and restyle every
protected component. The guard records each intercepted call with the
frame that issued it and blocks layout writes from untrusted callers.

The report groups records by originating frame. Layout-critical writes
(display, flex*, position, and the style and class attributes) are
blocked unless the caller is trusted or the write uses !important.

Examples:
  perfguard trace index.html                       # text report
  perfguard trace index.html --format json         # machine-readable report
  perfguard trace index.html -f html -o trace.html # standalone HTML report
  perfguard trace index.html --no-script           # only the optimizer's own writes`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

var (
	traceFlags    OutputFlags
	traceLayout   string
	traceNoScript bool
)

func init() {
	rootCmd.AddCommand(traceCmd)

	addOutputFlags(traceCmd, &traceFlags, "text", "json", "yaml", "html")
	traceCmd.Flags().StringVar(&traceLayout, "layout", "", "YAML layout file with measured element geometry")
	traceCmd.Flags().BoolVar(&traceNoScript, "no-script", false, "Skip the hostile script replay")
}

func runTrace(cmd *cobra.Command, args []string) error {
	in := args[0]
	if err := ValidateFileExists(in); err != nil {
		return err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	doc, err := loadPage(in, traceLayout, cfg)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", in, err)
	}
	p := newPipeline(cfg, logger, doc, false)
	defer p.close()

	registry := cfg.Registry()
	g := guard.New(p.facade, registry, logger, cfg.GuardOptions())
	sess, err := g.StartTracing(ctx)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}

	if _, err := p.optimize(ctx, metrics.NopReporter{}); err != nil {
		_ = g.StopTracing(ctx)
		return fmt.Errorf("failed to optimize %s: %w", in, err)
	}
	if !traceNoScript {
		p.loop.Post(func() {
			zones := hostileScript(p.facade, registry)
			logger.Debug(ctx, "Hostile script finished", "zones", zones)
		})
		if err := p.drain(ctx); err != nil {
			_ = g.StopTracing(ctx)
			return err
		}
	}

	if err := g.StopTracing(ctx); err != nil {
		return fmt.Errorf("failed to stop tracing: %w", err)
	}
	report := sess.Report()

	w, closeOut, err := traceFlags.writer(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	switch traceFlags.Format {
	case "text":
		writeTraceText(w, in, report)
		return nil
	case "html":
		return traceReportHTML(in, report).Render(ctx, w)
	default:
		return encode(w, traceFlags.Format, report)
	}
}
