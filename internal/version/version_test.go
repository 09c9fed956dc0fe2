package version

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	tests := []struct {
		info BuildInfo
		want string
	}{
		{BuildInfo{Version: "v1.2.0", GitCommit: "0123456789abcdef"}, "v1.2.0 (0123456)"},
		{BuildInfo{Version: "dev", GitCommit: "unknown"}, "dev"},
		{BuildInfo{Version: "v1.2.0", GitCommit: "abc"}, "v1.2.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.info.Short())
	}
}

func TestIsRelease(t *testing.T) {
	assert.True(t, BuildInfo{Version: "v0.3.1"}.IsRelease())
	assert.False(t, BuildInfo{Version: "dev"}.IsRelease())
	assert.False(t, BuildInfo{Version: "dev-abc1234"}.IsRelease())
}

func TestString(t *testing.T) {
	info := BuildInfo{
		Version:   "v1.0.0",
		GitCommit: "deadbeef",
		Dirty:     true,
		BuildTime: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
	}
	assert.Equal(t, "Version: v1.0.0\nCommit: deadbeef (dirty)\nBuilt: 2026-03-01T12:00:00Z\nGo: go1.24.4\nPlatform: linux/amd64", info.String())
}

func TestGetUsesLdflags(t *testing.T) {
	old := Version
	defer func() { Version = old }()
	Version = "v9.9.9"

	info := Get()
	assert.Equal(t, "v9.9.9", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}
