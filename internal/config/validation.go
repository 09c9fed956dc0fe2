package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

func (vr *ValidationResult) fail(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateLoggingConfigDetails(&config.Logging, result)
	validateExclusionConfigDetails(&config.Exclusion, result)
	validateMetricsConfigDetails(&config.Metrics, result)
	validatePreloadConfigDetails(&config.Preload, result)
	validateOptimizerConfigDetails(&config.Optimizer, result)
	validateGuardConfigDetails(&config.Guard, result)
	validateViewportConfigDetails(&config.Viewport, result)
	validateChromeConfigDetails(&config.Chrome, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateLoggingConfigDetails(config *LoggingConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.fail("logging.level", config.Level, err.Error(),
			"Use one of: debug, info, warn, error")
	}
	if config.Format != "text" && config.Format != "json" {
		result.fail("logging.format", config.Format, fmt.Sprintf("unknown log format '%s'", config.Format),
			"Use 'text' for terminals or 'json' for log shippers")
	}
}

func validateExclusionConfigDetails(config *ExclusionConfig, result *ValidationResult) {
	if config.Attribute == "" {
		result.fail("exclusion.attribute", config.Attribute, "marker attribute cannot be empty",
			"The default marker is data-exclude-optimization")
		return
	}
	if strings.ContainsAny(config.Attribute, " \t\n\"'=<>/") {
		result.fail("exclusion.attribute", config.Attribute, "marker attribute is not a valid attribute name")
	}
	if !strings.HasPrefix(config.Attribute, "data-") {
		result.warn("exclusion.attribute", config.Attribute, "marker attribute is not a data-* attribute",
			"Custom data-* attributes never collide with standard HTML")
	}
	if strings.Contains(config.Value, `"`) {
		result.fail("exclusion.value", config.Value, "marker value cannot contain double quotes")
	}
}

func validateMetricsConfigDetails(config *MetricsConfig, result *ValidationResult) {
	if config.LongTaskThreshold < 0 {
		result.fail("metrics.long_task_threshold", config.LongTaskThreshold, "threshold cannot be negative")
	}
	if config.StoreCapacity < 1 {
		result.fail("metrics.store_capacity", config.StoreCapacity, "store must hold at least one sample")
	}
	if config.PercentileWindow < 1 {
		result.fail("metrics.percentile_window", config.PercentileWindow, "percentile window must be positive")
	} else if config.PercentileWindow < 20 {
		result.warn("metrics.percentile_window", config.PercentileWindow, "p95 and p99 are unstable below 20 samples")
	}
}

func validatePreloadConfigDetails(config *PreloadConfig, result *ValidationResult) {
	seen := make(map[string]bool)
	for i, r := range config.Resources {
		field := fmt.Sprintf("preload.resources[%d]", i)
		if r.URL == "" {
			result.fail(field+".url", r.URL, "resource URL cannot be empty")
			continue
		}
		if _, err := url.Parse(r.URL); err != nil {
			result.fail(field+".url", r.URL, err.Error())
		}
		if _, ok := r.Type.As(); !ok {
			result.fail(field+".type", r.Type, fmt.Sprintf("unknown resource type '%s'", r.Type),
				"Use one of: image, style, script, font")
		}
		if seen[r.URL] {
			result.warn(field+".url", r.URL, "duplicate resource is preloaded once")
		}
		seen[r.URL] = true
	}
	if config.IdleTimeout < 0 {
		result.fail("preload.idle_timeout", config.IdleTimeout, "timeout cannot be negative")
	}
	if config.FallbackDelay < 0 {
		result.fail("preload.fallback_delay", config.FallbackDelay, "delay cannot be negative")
	}
}

func validateOptimizerConfigDetails(config *OptimizerConfig, result *ValidationResult) {
	if config.LazyLoadViewports <= 0 {
		result.fail("optimizer.lazy_load_viewports", config.LazyLoadViewports, "threshold must be positive")
	}
	if config.LowPriorityViewports <= 0 {
		result.fail("optimizer.low_priority_viewports", config.LowPriorityViewports, "threshold must be positive")
	} else if config.LowPriorityViewports < config.LazyLoadViewports {
		result.warn("optimizer.low_priority_viewports", config.LowPriorityViewports,
			"low priority threshold is closer than the lazy loading threshold",
			"Images that are eagerly loaded but low priority usually load late")
	}
	if _, err := platform.ParseRootMargin(config.RootMargin); err != nil {
		result.fail("optimizer.root_margin", config.RootMargin, err.Error(), "Use a pixel value such as 50px")
	}
	if len(config.AnimationClasses) == 0 {
		result.warn("optimizer.animation_classes", config.AnimationClasses, "no animation classes, visibility gating only swaps deferred images")
	}
}

func validateGuardConfigDetails(config *GuardConfig, result *ValidationResult) {
	if config.FlushInterval <= 0 {
		result.fail("guard.flush_interval", config.FlushInterval, "flush interval must be positive")
	}
	if config.StackDepth < 1 || config.StackDepth > 64 {
		result.fail("guard.stack_depth", config.StackDepth, "stack depth must be between 1 and 64")
	}
	if config.MaxHistory < 1 {
		result.fail("guard.max_history", config.MaxHistory, "history must hold at least one record")
	}
	if len(config.VetoProperties) == 0 && len(config.VetoAttributes) == 0 {
		result.warn("guard.veto_properties", nil, "nothing is vetoed, the guard only records")
	}
	for _, p := range config.TrustedCallers {
		if strings.TrimSpace(p) == "" {
			result.fail("guard.trusted_callers", p, "trusted caller prefix cannot be blank")
		}
	}
}

func validateViewportConfigDetails(config *ViewportConfig, result *ValidationResult) {
	if config.Height <= 0 {
		result.fail("viewport.height", config.Height, "viewport height must be positive")
	}
	if config.ImageHeight <= 0 || config.BlockHeight <= 0 {
		result.fail("viewport.image_height", config.ImageHeight, "flow estimate heights must be positive")
	}
	if config.Layout != "" {
		if err := validatePath(config.Layout); err != nil {
			result.fail("viewport.layout", config.Layout, err.Error())
		} else if !pathExists(config.Layout) {
			result.warn("viewport.layout", config.Layout, "layout file does not exist yet")
		}
	}
}

func validateChromeConfigDetails(config *ChromeConfig, result *ValidationResult) {
	if config.RemoteURL != "" {
		u, err := url.Parse(config.RemoteURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https") {
			result.fail("chrome.remote_url", config.RemoteURL, "remote URL must be a ws, wss, http or https URL",
				"Use the DevTools websocket printed by chrome --remote-debugging-port")
		}
	}
	if config.NavigationTimeout <= 0 {
		result.fail("chrome.navigation_timeout", config.NavigationTimeout, "navigation timeout must be positive")
	}
	if config.CollectFor < 0 {
		result.fail("chrome.collect_for", config.CollectFor, "collection window cannot be negative")
	}
	if config.SnapshotLimit < 1 {
		result.fail("chrome.snapshot_limit", config.SnapshotLimit, "snapshot limit must be positive")
	}
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
