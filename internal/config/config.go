package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Default values
	DefaultLogLevel          = "info"
	DefaultMaxUploadSize     = 50 * 1024 * 1024 // 50MB
	DefaultProgressTTL       = time.Hour
	DefaultMaxConcurrentJobs = 4

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the batch filler.
type Config struct {
	// Directories
	WorkDir   string // per-session intermediates
	OutputDir string // final archives

	// Processing limits
	MaxUploadSize     int64
	MaxConcurrentJobs int

	// Progress registry
	ProgressTTL time.Duration

	// Application configuration
	Version  string
	LogLevel string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		WorkDir:           filepath.Join(currentDir, "work"),
		OutputDir:         filepath.Join(currentDir, "output"),
		MaxUploadSize:     DefaultMaxUploadSize,
		MaxConcurrentJobs: DefaultMaxConcurrentJobs,
		ProgressTTL:       DefaultProgressTTL,
		Version:           "1.0.0",
		LogLevel:          DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// Every flag can also be set through an ACROFILL_* environment variable.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()

	pflag.Parse()

	populateConfigFromViper(cfg)

	for _, dir := range []*string{&cfg.WorkDir, &cfg.OutputDir} {
		if *dir != "" {
			if expandedPath, err := filepath.Abs(*dir); err == nil {
				*dir = expandedPath
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("ACROFILL")
	viper.AutomaticEnv()

	viper.SetDefault("workdir", cfg.WorkDir)
	viper.SetDefault("outputdir", cfg.OutputDir)
	viper.SetDefault("maxuploadsize", cfg.MaxUploadSize)
	viper.SetDefault("maxjobs", cfg.MaxConcurrentJobs)
	viper.SetDefault("progressttl", cfg.ProgressTTL)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

func defineCommandLineFlags(cfg *Config) {
	pflag.String("workdir", cfg.WorkDir, "Directory for per-session intermediate files")
	pflag.String("outputdir", cfg.OutputDir, "Directory receiving finished archives")
	pflag.Int64("maxuploadsize", cfg.MaxUploadSize, "Maximum template/data upload size in bytes")
	pflag.Int("maxjobs", cfg.MaxConcurrentJobs, "Maximum number of batches processed concurrently")
	pflag.Duration("progressttl", cfg.ProgressTTL, "How long finished jobs stay visible in the progress registry")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

func bindFlagsToViper() {
	_ = viper.BindPFlag("workdir", pflag.Lookup("workdir"))
	_ = viper.BindPFlag("outputdir", pflag.Lookup("outputdir"))
	_ = viper.BindPFlag("maxuploadsize", pflag.Lookup("maxuploadsize"))
	_ = viper.BindPFlag("maxjobs", pflag.Lookup("maxjobs"))
	_ = viper.BindPFlag("progressttl", pflag.Lookup("progressttl"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
}

func populateConfigFromViper(cfg *Config) {
	cfg.WorkDir = viper.GetString("workdir")
	cfg.OutputDir = viper.GetString("outputdir")
	cfg.MaxUploadSize = viper.GetInt64("maxuploadsize")
	cfg.MaxConcurrentJobs = viper.GetInt("maxjobs")
	cfg.ProgressTTL = viper.GetDuration("progressttl")
	cfg.LogLevel = viper.GetString("loglevel")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New("work directory cannot be empty")
	}
	if c.OutputDir == "" {
		return errors.New("output directory cannot be empty")
	}

	for _, dir := range []string{c.WorkDir, c.OutputDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		} else if err != nil {
			return fmt.Errorf("cannot access directory %s: %w", dir, err)
		}
	}

	if c.MaxUploadSize <= 0 {
		return errors.New("maximum upload size must be positive")
	}
	if c.MaxConcurrentJobs < 1 {
		return errors.New("maximum concurrent jobs must be at least 1")
	}
	if c.ProgressTTL <= 0 {
		return errors.New("progress TTL must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// IsDebug returns true if debug logging is enabled.
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{WorkDir: %s, OutputDir: %s, MaxUploadSize: %d, MaxConcurrentJobs: %d, LogLevel: %s}",
		c.WorkDir, c.OutputDir, c.MaxUploadSize, c.MaxConcurrentJobs, c.LogLevel)
}
