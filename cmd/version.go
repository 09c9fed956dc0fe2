package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/perfguard/internal/version"
)

var (
	versionFlags    OutputFlags
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for perfguard: version, git commit, build
time, Go version and target platform.

Examples:
  perfguard version              # Show version and commit
  perfguard version --detailed   # Show every build field
  perfguard version --format json`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	addOutputFlags(versionCmd, &versionFlags, "text", "json", "yaml")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show the version number only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()

	w, closeOut, err := versionFlags.writer(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if versionFlags.Format != "text" {
		return encode(w, versionFlags.Format, info)
	}

	switch {
	case versionShort:
		fmt.Fprintln(w, info.Version)
	case versionDetailed:
		fmt.Fprintln(w, info.String())
		if info.IsRelease() {
			fmt.Fprintln(w, "Build type: release")
		} else {
			fmt.Fprintln(w, "Build type: development")
		}
	default:
		fmt.Fprintf(w, "perfguard %s\n", info.Short())
	}
	return nil
}
