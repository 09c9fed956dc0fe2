package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/guard"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/metrics"
	"github.com/conneroisu/perfguard/internal/optimizer"
	"github.com/conneroisu/perfguard/internal/preload"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, exclusion.DefaultAttribute, cfg.Exclusion.Attribute)
	assert.Equal(t, exclusion.DefaultValue, cfg.Exclusion.Value)
	assert.Equal(t, metrics.DefaultLongTaskThreshold, cfg.Metrics.LongTaskThreshold)
	assert.Equal(t, 1000, cfg.Metrics.StoreCapacity)
	assert.Nil(t, cfg.Preload.Resources, "monitor defaults apply")
	assert.Equal(t, preload.DefaultIdleTimeout, cfg.Preload.IdleTimeout)
	assert.Equal(t, 1.0, cfg.Optimizer.LazyLoadViewports)
	assert.Equal(t, 2.0, cfg.Optimizer.LowPriorityViewports)
	assert.Equal(t, optimizer.DefaultAnimationClasses, cfg.Optimizer.AnimationClasses)
	assert.Equal(t, "50px", cfg.Optimizer.RootMargin)
	assert.Equal(t, 5*time.Second, cfg.Guard.FlushInterval)
	assert.Equal(t, guard.DefaultVetoProperties, cfg.Guard.VetoProperties)
	assert.Equal(t, 800.0, cfg.Viewport.Height)
	assert.True(t, cfg.Chrome.Headless)
	assert.Equal(t, 30*time.Second, cfg.Chrome.NavigationTimeout)
}

func TestLoadOverrides(t *testing.T) {
	tests := []struct {
		name   string
		setup  func()
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name: "duration strings",
			setup: func() {
				viper.Set("guard.flush_interval", "250ms")
				viper.Set("metrics.long_task_threshold", "80ms")
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 250*time.Millisecond, cfg.Guard.FlushInterval)
				assert.Equal(t, 80*time.Millisecond, cfg.Metrics.LongTaskThreshold)
			},
		},
		{
			name: "custom exclusion marker",
			setup: func() {
				viper.Set("exclusion.attribute", "data-protected")
				viper.Set("exclusion.value", "yes")
			},
			verify: func(t *testing.T, cfg *Config) {
				reg := cfg.Registry()
				assert.Equal(t, `[data-protected="yes"]`, reg.Selector())
			},
		},
		{
			name: "preload resources",
			setup: func() {
				viper.Set("preload.resources", []map[string]interface{}{
					{"url": "/img/terrace.webp", "type": "image"},
					{"url": "/fonts/lora.woff2", "type": "font"},
				})
			},
			verify: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []preload.Resource{
					{URL: "/img/terrace.webp", Type: preload.TypeImage},
					{URL: "/fonts/lora.woff2", Type: preload.TypeFont},
				}, cfg.Preload.Resources)
				assert.Equal(t, cfg.Preload.Resources, cfg.MonitorOptions().Resources)
			},
		},
		{
			name: "trusted callers",
			setup: func() {
				viper.Set("guard.trusted_callers", []string{"github.com/acme/site/hero."})
			},
			verify: func(t *testing.T, cfg *Config) {
				opts := cfg.GuardOptions()
				assert.Equal(t, []string{"github.com/acme/site/hero."}, opts.TrustedCallers)
				assert.Equal(t, 16, opts.StackDepth)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setup()
			cfg, err := Load()
			require.NoError(t, err)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		field string
	}{
		{name: "log level", key: "logging.level", value: "loud", field: "logging.level"},
		{name: "log format", key: "logging.format", value: "xml", field: "logging.format"},
		{name: "empty marker", key: "exclusion.attribute", value: "", field: "exclusion.attribute"},
		{name: "root margin percent", key: "optimizer.root_margin", value: "10%", field: "optimizer.root_margin"},
		{name: "zero flush interval", key: "guard.flush_interval", value: "0s", field: "guard.flush_interval"},
		{name: "viewport height", key: "viewport.height", value: -1, field: "viewport.height"},
		{name: "layout traversal", key: "viewport.layout", value: "../../etc/layout.yml", field: "viewport.layout"},
		{name: "remote url scheme", key: "chrome.remote_url", value: "ftp://localhost:9222", field: "chrome.remote_url"},
		{name: "unknown resource type", key: "preload.resources", value: []map[string]interface{}{{"url": "/a.mp4", "type": "video"}}, field: "preload.resources[0].type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			viper.Set(tt.key, tt.value)

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)

			var perr *perrors.PerfError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, perrors.ErrorTypeConfig, perr.Type)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadUndecodable(t *testing.T) {
	viper.Reset()
	viper.Set("guard.stack_depth", "deep")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("PERFGUARD_GUARD_FLUSH_INTERVAL", "2s")
	t.Setenv("PERFGUARD_VIEWPORT_HEIGHT", "900")

	viper.Reset()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Guard.FlushInterval)
	assert.Equal(t, 900.0, cfg.Viewport.Height)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".perfguard.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
optimizer:
  lazy_load_viewports: 1.5
  animation_classes: [reveal-up]
guard:
  veto_properties: [display]
chrome:
  stealth: true
  collect_for: 10s
`), 0o600))

	viper.Reset()
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 1.5, cfg.Optimizer.LazyLoadViewports)
	assert.Equal(t, []string{"reveal-up"}, cfg.OptimizerOptions().AnimationClasses)
	assert.Equal(t, []string{"display"}, cfg.Guard.VetoProperties)
	assert.True(t, cfg.Chrome.Stealth)
	assert.Equal(t, 10*time.Second, cfg.Chrome.CollectFor)

	lc := cfg.LoggerConfig(os.Stderr)
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestValidateConfigWithDetails(t *testing.T) {
	viper.Reset()
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Exclusion.Attribute = "protected"
	cfg.Optimizer.LowPriorityViewports = 0.5
	cfg.Metrics.PercentileWindow = 5
	cfg.Preload.Resources = []preload.Resource{
		{URL: "/a.css", Type: preload.TypeStyle},
		{URL: "/a.css", Type: preload.TypeStyle},
	}

	result := ValidateConfigWithDetails(cfg)
	assert.True(t, result.Valid)
	assert.False(t, result.HasErrors())
	require.True(t, result.HasWarnings())

	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{
		"exclusion.attribute",
		"optimizer.low_priority_viewports",
		"metrics.percentile_window",
		"preload.resources[1].url",
	}, fields)
	assert.Contains(t, result.String(), "Validation Warnings")
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{path: "layouts/home.yml"},
		{path: "./layout.yaml"},
		{path: "", wantErr: true},
		{path: "../secret.yml", wantErr: true},
		{path: "layout.yml; rm -rf /", wantErr: true},
		{path: "$(whoami).yml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
