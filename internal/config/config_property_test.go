//go:build property
// +build property

package config

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

func defaultConfig(t *testing.T) *Config {
	viper.Reset()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	return cfg
}

// TestConfigurationProperties tests configuration validation properties
func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	base := defaultConfig(t)

	properties.Property("positive thresholds validate", prop.ForAll(
		func(lazy, extra float64, margin int) bool {
			cfg := *base
			cfg.Optimizer.LazyLoadViewports = lazy
			cfg.Optimizer.LowPriorityViewports = lazy + extra
			cfg.Optimizer.RootMargin = fmt.Sprintf("%dpx", margin)
			return validateConfig(&cfg) == nil
		},
		gen.Float64Range(0.1, 10),
		gen.Float64Range(0, 10),
		gen.IntRange(0, 2000),
	))

	properties.Property("non-positive flush interval is rejected", prop.ForAll(
		func(ms int) bool {
			cfg := *base
			cfg.Guard.FlushInterval = time.Duration(-ms) * time.Millisecond
			err := validateConfig(&cfg)
			return err != nil && strings.Contains(err.Error(), "guard.flush_interval")
		},
		gen.IntRange(0, 100000),
	))

	properties.Property("data attributes are accepted as markers", prop.ForAll(
		func(suffix string) bool {
			cfg := *base
			cfg.Exclusion.Attribute = "data-" + suffix
			result := ValidateConfigWithDetails(&cfg)
			return result.Valid && !result.HasWarnings()
		},
		gen.RegexMatch(`^[a-z][a-z0-9-]{0,20}$`),
	))

	properties.Property("path validation rejects traversal", prop.ForAll(
		func(segment string) bool {
			return validatePath("../"+segment) != nil
		},
		gen.RegexMatch(`^[a-z]{1,10}$`),
	))

	properties.TestingRun(t)
}
