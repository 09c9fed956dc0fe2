// Package cmd provides the command-line interface for perfguard with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --log-level, etc.) - highest priority
//	2. PERFGUARD_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (PERFGUARD_GUARD_FLUSH_INTERVAL, etc.)
//	4. Configuration files (.perfguard.yml) - lowest priority
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/perfguard/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "perfguard",
	Short: "Page performance optimizer and layout guard",
	Long: `perfguard applies safe loading optimizations to HTML pages, collects
Core Web Vitals, and guards developer-marked components against layout writes.

Key Features:
  • Lazy loading and fetch priority hints below the fold
  • Reduced-motion and font-display handling
  • Idle-time preloading of critical resources
  • LCP, CLS, interaction and long task collection
  • Mutation guard for data-exclude-optimization zones

Quick Start:
  perfguard optimize index.html      Optimize a page on disk
  perfguard trace index.html         Report writes into protected zones
  perfguard audit https://site.test  Measure and optimize a live page
  perfguard watch ./public           Re-optimize on every change`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .perfguard.yml, can also use PERFGUARD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig resolves the config file and enables PERFGUARD_ environment
// overrides.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag
//  2. PERFGUARD_CONFIG_FILE environment variable
//  3. .perfguard.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PERFGUARD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".perfguard")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing file falls back to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
