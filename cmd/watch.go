package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/perfguard/internal/config"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-optimize HTML pages when they change",
	Long: `Watch a directory tree and run optimize on every HTML file that is created
or modified. Output is written next to each page as <page>.optimized.html;
those files are ignored by the watcher so they never trigger another run.

Examples:
  perfguard watch ./public
  perfguard watch ./public --debounce 500ms --layout layout.yml
  perfguard watch ./public --no-initial    # skip the initial pass`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchDebounce  time.Duration
	watchLayout    string
	watchNoInitial bool
	watchVerbose   bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "Quiet period before a batch of changes is processed")
	watchCmd.Flags().StringVar(&watchLayout, "layout", "", "YAML layout file with measured element geometry")
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "Do not optimize existing pages on start")
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Verbose output")
}

// pageOptimizer returns the watcher handler that re-optimizes changed pages.
func pageOptimizer(cfg *config.Config, logger logging.Logger, out io.Writer) watcher.ChangeHandler {
	return func(ctx context.Context, events []watcher.ChangeEvent) error {
		var failed int
		for _, event := range events {
			if event.Type == watcher.EventTypeDeleted || event.Type == watcher.EventTypeRenamed {
				continue
			}
			dst := outputPath(event.Path)
			res, err := optimizeFile(ctx, cfg, logger, event.Path, dst, watchLayout, false)
			if err != nil {
				failed++
				logger.Warn(ctx, err, "Optimizing page failed", "path", event.Path)
				continue
			}
			fmt.Fprintf(out, "%s: %s -> %s (lazy %d, low priority %d)\n",
				event.Type, event.Path, dst, res.Lazy, res.LowPriority)
			if watchVerbose {
				printResult(out, res)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d pages failed", failed, len(events))
		}
		return nil
	}
}

// initialPages lists the HTML pages already under root that the watcher
// would accept.
func initialPages(root string, filters ...watcher.FileFilter) ([]watcher.ChangeEvent, error) {
	var events []watcher.ChangeEvent
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !watcher.NoHiddenFilter(path) {
				return filepath.SkipDir
			}
			return nil
		}
		for _, f := range filters {
			if !f(path) {
				return nil
			}
		}
		events = append(events, watcher.ChangeEvent{Type: watcher.EventTypeModified, Path: path})
		return nil
	})
	return events, err
}

func runWatch(cmd *cobra.Command, args []string) error {
	root := args[0]
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	fileWatcher, err := watcher.NewFileWatcher(watchDebounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	filters := []watcher.FileFilter{
		watcher.HTMLFilter,
		watcher.OutputFilter(optimizedSuffix),
		watcher.NoHiddenFilter,
		watcher.NoGitFilter,
	}
	for _, f := range filters {
		fileWatcher.AddFilter(f)
	}
	handler := pageOptimizer(cfg, logger, cmd.OutOrStdout())
	fileWatcher.AddHandler(handler)

	if err := fileWatcher.AddRecursive(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	ctx, cancel := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !watchNoInitial {
		pages, err := initialPages(root, filters...)
		if err != nil {
			return fmt.Errorf("initial scan failed: %w", err)
		}
		if err := handler(ctx, pages); err != nil {
			logger.Warn(ctx, err, "Initial pass incomplete")
		}
	}

	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for HTML changes (Ctrl+C to stop)\n", root)

	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "Stopping file watcher...")
	return nil
}
