package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/perfguard/internal/optimizer"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <file.html>",
	Short: "Optimize an HTML page",
	Long: `Run the performance core over an HTML file and write the optimized page.

Images below the fold receive loading="lazy" and fetchpriority="low",
critical resources are preloaded, animation classes are gated on visibility
and font-display rules are injected. Components marked with the exclusion
attribute (data-exclude-optimization="true" by default) are never touched.

Element geometry comes from --layout (or viewport.layout) when given,
otherwise from a document-order flow estimate.

Examples:
  perfguard optimize index.html                      # writes index.optimized.html
  perfguard optimize index.html -o - > out.html      # write to stdout
  perfguard optimize index.html --layout layout.yml  # use measured geometry
  perfguard optimize index.html --reduced-motion     # emulate reduced motion`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimize,
}

var (
	optimizeOutput        string
	optimizeLayout        string
	optimizeReducedMotion bool
	optimizeQuiet         bool
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVarP(&optimizeOutput, "output", "o", "", "Output file, - for stdout (default <file>.optimized.html)")
	optimizeCmd.Flags().StringVar(&optimizeLayout, "layout", "", "YAML layout file with measured element geometry")
	optimizeCmd.Flags().BoolVar(&optimizeReducedMotion, "reduced-motion", false, "Emulate prefers-reduced-motion: reduce")
	optimizeCmd.Flags().BoolVarP(&optimizeQuiet, "quiet", "q", false, "Do not print the summary")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	in := args[0]
	if err := ValidateFileExists(in); err != nil {
		return err
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	out := optimizeOutput
	if out == "" {
		out = outputPath(in)
	}

	res, err := optimizeFile(commandContext(cmd), cfg, logger, in, out, optimizeLayout, optimizeReducedMotion)
	if err != nil {
		return fmt.Errorf("failed to optimize %s: %w", in, err)
	}

	if !optimizeQuiet && out != "-" {
		printResult(cmd.OutOrStdout(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
	}
	return nil
}

func printResult(w io.Writer, res optimizer.Result) {
	fmt.Fprintf(w, "Lazy loaded:     %d\n", res.Lazy)
	fmt.Fprintf(w, "Low priority:    %d\n", res.LowPriority)
	fmt.Fprintf(w, "Motion reduced:  %d\n", res.MotionReduced)
	fmt.Fprintf(w, "Observed:        %d\n", res.Observed)
	fmt.Fprintf(w, "Excluded:        %d\n", res.Excluded)
	if res.ElementErrors > 0 {
		fmt.Fprintf(w, "Element errors:  %d\n", res.ElementErrors)
	}
	for _, id := range res.StylesInjected {
		fmt.Fprintf(w, "Injected style:  %s\n", id)
	}
	if res.VisibilityEager {
		fmt.Fprintln(w, "Visibility gating unavailable, animations applied eagerly")
	}
}
