// Package config provides configuration management for perfguard using Viper
// for loading from files, environment variables, and command-line flags.
//
// Configuration is read from .perfguard.yml (or the file named by --config /
// PERFGUARD_CONFIG_FILE), with PERFGUARD_ prefixed environment overrides such
// as PERFGUARD_GUARD_FLUSH_INTERVAL=2s. Every section has explicit defaults
// and the loaded result is validated before use.
package config

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/guard"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/optimizer"
	"github.com/conneroisu/perfguard/internal/performance"
	"github.com/conneroisu/perfguard/internal/platform"
	"github.com/conneroisu/perfguard/internal/preload"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PERFGUARD"

type Config struct {
	Logging   LoggingConfig   `yaml:"logging" json:"logging" mapstructure:"logging"`
	Exclusion ExclusionConfig `yaml:"exclusion" json:"exclusion" mapstructure:"exclusion"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Preload   PreloadConfig   `yaml:"preload" json:"preload" mapstructure:"preload"`
	Optimizer OptimizerConfig `yaml:"optimizer" json:"optimizer" mapstructure:"optimizer"`
	Guard     GuardConfig     `yaml:"guard" json:"guard" mapstructure:"guard"`
	Viewport  ViewportConfig  `yaml:"viewport" json:"viewport" mapstructure:"viewport"`
	Chrome    ChromeConfig    `yaml:"chrome" json:"chrome" mapstructure:"chrome"`
}

type LoggingConfig struct {
	Level     string `yaml:"level" json:"level" mapstructure:"level"`
	Format    string `yaml:"format" json:"format" mapstructure:"format"`
	AddSource bool   `yaml:"add_source" json:"add_source" mapstructure:"add_source"`
	// File, when set, also receives every record as JSON.
	File string `yaml:"file,omitempty" json:"file,omitempty" mapstructure:"file"`
}

type ExclusionConfig struct {
	Attribute string `yaml:"attribute" json:"attribute" mapstructure:"attribute"`
	Value     string `yaml:"value" json:"value" mapstructure:"value"`
}

type MetricsConfig struct {
	LongTaskThreshold time.Duration `yaml:"long_task_threshold" json:"long_task_threshold" mapstructure:"long_task_threshold"`
	StoreCapacity     int           `yaml:"store_capacity" json:"store_capacity" mapstructure:"store_capacity"`
	PercentileWindow  int           `yaml:"percentile_window" json:"percentile_window" mapstructure:"percentile_window"`
	Prometheus        bool          `yaml:"prometheus" json:"prometheus" mapstructure:"prometheus"`
}

type PreloadConfig struct {
	Resources     []preload.Resource `yaml:"resources" json:"resources" mapstructure:"resources"`
	IdleTimeout   time.Duration      `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	FallbackDelay time.Duration      `yaml:"fallback_delay" json:"fallback_delay" mapstructure:"fallback_delay"`
}

type OptimizerConfig struct {
	LazyLoadViewports    float64  `yaml:"lazy_load_viewports" json:"lazy_load_viewports" mapstructure:"lazy_load_viewports"`
	LowPriorityViewports float64  `yaml:"low_priority_viewports" json:"low_priority_viewports" mapstructure:"low_priority_viewports"`
	AnimationClasses     []string `yaml:"animation_classes" json:"animation_classes" mapstructure:"animation_classes"`
	RootMargin           string   `yaml:"root_margin" json:"root_margin" mapstructure:"root_margin"`
}

type GuardConfig struct {
	FlushInterval  time.Duration `yaml:"flush_interval" json:"flush_interval" mapstructure:"flush_interval"`
	TrustedCallers []string      `yaml:"trusted_callers" json:"trusted_callers" mapstructure:"trusted_callers"`
	VetoProperties []string      `yaml:"veto_properties" json:"veto_properties" mapstructure:"veto_properties"`
	VetoAttributes []string      `yaml:"veto_attributes" json:"veto_attributes" mapstructure:"veto_attributes"`
	StackDepth     int           `yaml:"stack_depth" json:"stack_depth" mapstructure:"stack_depth"`
	MaxHistory     int           `yaml:"max_history" json:"max_history" mapstructure:"max_history"`
}

// ViewportConfig drives layout for offline documents. Layout names a YAML
// layout file; without one, a flow estimate with the given heights is used.
type ViewportConfig struct {
	Height      float64 `yaml:"height" json:"height" mapstructure:"height"`
	Layout      string  `yaml:"layout" json:"layout" mapstructure:"layout"`
	ImageHeight float64 `yaml:"image_height" json:"image_height" mapstructure:"image_height"`
	BlockHeight float64 `yaml:"block_height" json:"block_height" mapstructure:"block_height"`
}

type ChromeConfig struct {
	RemoteURL         string        `yaml:"remote_url" json:"remote_url" mapstructure:"remote_url"`
	Headless          bool          `yaml:"headless" json:"headless" mapstructure:"headless"`
	Stealth           bool          `yaml:"stealth" json:"stealth" mapstructure:"stealth"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout" mapstructure:"navigation_timeout"`
	CollectFor        time.Duration `yaml:"collect_for" json:"collect_for" mapstructure:"collect_for"`
	SnapshotLimit     int           `yaml:"snapshot_limit" json:"snapshot_limit" mapstructure:"snapshot_limit"`
	ReducedMotion     bool          `yaml:"reduced_motion" json:"reduced_motion" mapstructure:"reduced_motion"`
}

// SetDefaults registers every default on the global viper instance.
func SetDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("logging.file", "")

	viper.SetDefault("exclusion.attribute", exclusion.DefaultAttribute)
	viper.SetDefault("exclusion.value", exclusion.DefaultValue)

	viper.SetDefault("metrics.long_task_threshold", metrics.DefaultLongTaskThreshold)
	viper.SetDefault("metrics.store_capacity", 1000)
	viper.SetDefault("metrics.percentile_window", 1000)
	viper.SetDefault("metrics.prometheus", false)

	viper.SetDefault("preload.idle_timeout", preload.DefaultIdleTimeout)
	viper.SetDefault("preload.fallback_delay", preload.DefaultFallbackDelay)

	viper.SetDefault("optimizer.lazy_load_viewports", 1.0)
	viper.SetDefault("optimizer.low_priority_viewports", 2.0)
	viper.SetDefault("optimizer.animation_classes", optimizer.DefaultAnimationClasses)
	viper.SetDefault("optimizer.root_margin", "50px")

	viper.SetDefault("guard.flush_interval", 5*time.Second)
	viper.SetDefault("guard.veto_properties", guard.DefaultVetoProperties)
	viper.SetDefault("guard.veto_attributes", guard.DefaultVetoAttributes)
	viper.SetDefault("guard.stack_depth", 16)
	viper.SetDefault("guard.max_history", 10000)

	viper.SetDefault("viewport.height", 800.0)
	viper.SetDefault("viewport.image_height", 400.0)
	viper.SetDefault("viewport.block_height", 40.0)

	viper.SetDefault("chrome.headless", true)
	viper.SetDefault("chrome.stealth", false)
	viper.SetDefault("chrome.navigation_timeout", 30*time.Second)
	viper.SetDefault("chrome.collect_for", 5*time.Second)
	viper.SetDefault("chrome.snapshot_limit", 5000)
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, perrors.WrapConfig(err, perrors.ErrCodeConfigInvalid, "decode configuration")
	}

	// Without a configured list the monitor's built-in defaults apply.
	if !viper.IsSet("preload.resources") {
		config.Preload.Resources = nil
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	err := perrors.NewConfigError(perrors.ErrCodeConfigInvalid,
		fmt.Sprintf("%s: %s", first.Field, first.Message))
	if len(result.Errors) > 1 {
		err.WithContext("additional_errors", len(result.Errors)-1)
	}
	return err
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig(out io.Writer) *logging.LoggerConfig {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return &logging.LoggerConfig{
		Level:     level,
		Format:    c.Logging.Format,
		Output:    out,
		AddSource: c.Logging.AddSource,
	}
}

// Registry builds the exclusion registry.
func (c *Config) Registry() *exclusion.Registry {
	return exclusion.New(c.Exclusion.Attribute, c.Exclusion.Value)
}

// GuardOptions converts the guard section.
func (c *Config) GuardOptions() guard.Options {
	return guard.Options{
		FlushInterval:  c.Guard.FlushInterval,
		TrustedCallers: c.Guard.TrustedCallers,
		VetoProperties: c.Guard.VetoProperties,
		VetoAttributes: c.Guard.VetoAttributes,
		StackDepth:     c.Guard.StackDepth,
		MaxHistory:     c.Guard.MaxHistory,
	}
}

// OptimizerOptions converts the optimizer section.
func (c *Config) OptimizerOptions() optimizer.Options {
	return optimizer.Options{
		LazyLoadViewports:    c.Optimizer.LazyLoadViewports,
		LowPriorityViewports: c.Optimizer.LowPriorityViewports,
		AnimationClasses:     c.Optimizer.AnimationClasses,
		RootMargin:           c.Optimizer.RootMargin,
	}
}

// MonitorOptions converts the metrics, preload and optimizer sections.
func (c *Config) MonitorOptions() performance.Options {
	return performance.Options{
		Resources: c.Preload.Resources,
		Metrics:   metrics.Options{LongTaskThreshold: c.Metrics.LongTaskThreshold},
		Preload: preload.Options{
			IdleTimeout:   c.Preload.IdleTimeout,
			FallbackDelay: c.Preload.FallbackDelay,
		},
		Optimizer: c.OptimizerOptions(),
	}
}

// NewSampleStore builds a store sized by the metrics section.
func (c *Config) NewSampleStore() *performance.SampleStore {
	return performance.NewSampleStore(c.Metrics.StoreCapacity, c.Metrics.PercentileWindow)
}

// RootMarginPx returns the optimizer root margin in pixels.
func (c *Config) RootMarginPx() (float64, error) {
	return platform.ParseRootMargin(c.Optimizer.RootMargin)
}
