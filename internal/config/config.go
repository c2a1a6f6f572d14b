// Package config loads daemon configuration from BUILDHOOK_* environment
// variables, with sensible defaults for local use.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the daemon needs at startup.
type Config struct {
	// Host and Port form the HTTP listen address.
	Host string
	Port int

	// Command is the external build command every job invokes; Workdir is
	// the directory it runs in.
	Command string
	Workdir string

	// JobTimeout bounds a single run; zero disables the limit.
	JobTimeout time.Duration

	// LogCapacity is the per-job log buffer size in bytes.
	LogCapacity int

	// GracePeriod is how long a finished job stays queryable before it is
	// evicted from the registry.
	GracePeriod time.Duration

	// MaxJobs caps the number of concurrently tracked jobs.
	MaxJobs int

	// Debug enables development logging.
	Debug bool
}

// Load reads configuration from the environment. Unset variables fall back
// to defaults; the result is validated before being returned.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("BUILDHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("command", "make")
	v.SetDefault("workdir", ".")
	v.SetDefault("job_timeout", 10*time.Minute)
	v.SetDefault("log_capacity", 1024*1024)
	v.SetDefault("grace_period", time.Minute)
	v.SetDefault("max_jobs", 16)
	v.SetDefault("debug", false)

	cfg := &Config{
		Host:        v.GetString("host"),
		Port:        v.GetInt("port"),
		Command:     v.GetString("command"),
		Workdir:     v.GetString("workdir"),
		JobTimeout:  v.GetDuration("job_timeout"),
		LogCapacity: v.GetInt("log_capacity"),
		GracePeriod: v.GetDuration("grace_period"),
		MaxJobs:     v.GetInt("max_jobs"),
		Debug:       v.GetBool("debug"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot start
// with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be in valid range")
	}

	if c.Command == "" {
		return errors.New("command cannot be empty")
	}

	if c.LogCapacity <= 0 {
		return errors.New("log capacity must be positive")
	}

	if c.GracePeriod < 0 {
		return errors.New("grace period cannot be negative")
	}

	if c.JobTimeout < 0 {
		return errors.New("job timeout cannot be negative")
	}

	if c.MaxJobs < 1 {
		return errors.New("max jobs must be at least 1")
	}

	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
