package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	base := t.TempDir()
	return &Config{
		WorkDir:           filepath.Join(base, "work"),
		OutputDir:         filepath.Join(base, "output"),
		MaxUploadSize:     DefaultMaxUploadSize,
		MaxConcurrentJobs: DefaultMaxConcurrentJobs,
		ProgressTTL:       DefaultProgressTTL,
		LogLevel:          DefaultLogLevel,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.WorkDir)
	assert.NotEmpty(t, cfg.OutputDir)
	assert.Equal(t, int64(DefaultMaxUploadSize), cfg.MaxUploadSize)
	assert.Equal(t, DefaultMaxConcurrentJobs, cfg.MaxConcurrentJobs)
	assert.Equal(t, time.Duration(DefaultProgressTTL), cfg.ProgressTTL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "empty work dir",
			mutate:  func(c *Config) { c.WorkDir = "" },
			wantErr: "work directory",
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.OutputDir = "" },
			wantErr: "output directory",
		},
		{
			name:    "non-positive upload size",
			mutate:  func(c *Config) { c.MaxUploadSize = 0 },
			wantErr: "upload size",
		},
		{
			name:    "zero concurrent jobs",
			mutate:  func(c *Config) { c.MaxConcurrentJobs = 0 },
			wantErr: "concurrent jobs",
		},
		{
			name:    "zero progress TTL",
			mutate:  func(c *Config) { c.ProgressTTL = 0 },
			wantErr: "progress TTL",
		},
		{
			name:    "bogus log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.DirExists(t, cfg.WorkDir, "Validate should create missing directories")
				assert.DirExists(t, cfg.OutputDir)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsDebug(t *testing.T) {
	cfg := validConfig(t)
	assert.False(t, cfg.IsDebug())
	cfg.LogLevel = "debug"
	assert.True(t, cfg.IsDebug())
}
