package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/perfguard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect perfguard configuration",
	Long: `Inspect the perfguard configuration.

Examples:
  perfguard config show                # Show the effective configuration
  perfguard config show --format json  # Show in JSON format
  perfguard config validate            # Validate and list warnings
  perfguard config validate --strict   # Treat warnings as errors`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, the config file, PERFGUARD_
environment variables and command-line flags have been applied.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration and report errors and warnings with
suggestions. Exits non-zero when the configuration is invalid, or when
--strict is set and there are warnings.`,
	RunE: runConfigValidate,
}

var (
	configShowFlags OutputFlags
	configStrict    bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	addOutputFlags(configShowCmd, &configShowFlags, "yaml", "json")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	w, closeOut, err := configShowFlags.writer(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	if used := viper.ConfigFileUsed(); used != "" && configShowFlags.Format == "yaml" {
		fmt.Fprintf(w, "# %s\n", used)
	}
	return encode(w, configShowFlags.Format, cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	result := config.ValidateConfigWithDetails(cfg)
	out := cmd.OutOrStdout()
	if s := result.String(); s != "" {
		fmt.Fprint(out, s)
	}

	if result.HasErrors() {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}
	if configStrict && result.HasWarnings() {
		return fmt.Errorf("configuration has %d warning(s) (strict mode)", len(result.Warnings))
	}
	fmt.Fprintln(out, "✅ Configuration is valid")
	return nil
}
