package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvPrefix namespaces the environment variables read by New
const EnvPrefix = "HTTPD"

// Errors
var (
	ErrMissingPort   = errors.New("config: port is required")
	ErrInvalidConfig = errors.New("config: invalid value")
)

// Config holds all application configuration.
type Config struct {
	Port        int
	Workers     int
	MaxRequests int
	DocRoot     string
	DefaultPage string
	TimeSlot    time.Duration
	IdleTimeout time.Duration
	MaxFD       int
	LogLevel    string
	LogFormat   string
	StatsOut    string
	GCPercent   int
	Env         string
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Workers:     8,
		MaxRequests: 10000,
		DocRoot:     "./resources",
		DefaultPage: "index.html",
		TimeSlot:    5 * time.Second,
		IdleTimeout: 15 * time.Second,
		MaxFD:       65535,
		LogLevel:    "info",
		LogFormat:   "text",
		Env:         "development",
	}
}

// New loads configuration from the process environment and command line.
func New(args []string) (*Config, error) {
	m := NewManager()
	m.LoadFromEnv(EnvPrefix)
	return Parse(args, m, os.Stderr)
}

// Parse builds a configuration from defaults, then values in m, then the
// flags and positional port in args. Usage output goes to out.
func Parse(args []string, m *Manager, out io.Writer) (*Config, error) {
	cfg := Default()
	cfg.apply(m)

	fs := flag.NewFlagSet("tiny-httpd", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "usage: tiny-httpd [flags] port\n")
		fs.PrintDefaults()
	}

	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Worker goroutines")
	fs.IntVar(&cfg.MaxRequests, "max-requests", cfg.MaxRequests, "Maximum queued requests")
	fs.StringVar(&cfg.DocRoot, "docroot", cfg.DocRoot, "Document root")
	fs.StringVar(&cfg.DefaultPage, "default-page", cfg.DefaultPage, "Page served for /")
	fs.DurationVar(&cfg.TimeSlot, "time-slot", cfg.TimeSlot, "Idle sweep period")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Idle connection timeout")
	fs.IntVar(&cfg.MaxFD, "max-fd", cfg.MaxFD, "Maximum concurrent connections")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug/info/warn/error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text/json)")
	fs.StringVar(&cfg.StatsOut, "stats-out", cfg.StatsOut, "Write statistics on exit (.json or .pb)")
	fs.IntVar(&cfg.GCPercent, "gc-percent", cfg.GCPercent, "GC target percentage (0 keeps the runtime default)")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// the idle timeout follows the time slot unless set explicitly
	_, idleSet := m.Get("idle.timeout")
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "idle-timeout" {
			idleSet = true
		}
	})
	if !idleSet {
		cfg.IdleTimeout = 3 * cfg.TimeSlot
	}

	switch fs.NArg() {
	case 0:
		if cfg.Port == 0 {
			fs.Usage()
			return nil, ErrMissingPort
		}
	case 1:
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return nil, fmt.Errorf("%w: port %q", ErrInvalidConfig, fs.Arg(0))
		}
		cfg.Port = port
	default:
		fs.Usage()
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidConfig, fs.Args()[1:])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply overrides fields present in m. Keys are the lowercased field names
// with dots, as LoadFromEnv produces them (HTTPD_MAX_REQUESTS -> max.requests).
func (c *Config) apply(m *Manager) {
	c.Port = m.GetInt("port", c.Port)
	c.Workers = m.GetInt("workers", c.Workers)
	c.MaxRequests = m.GetInt("max.requests", c.MaxRequests)
	c.DocRoot = m.GetString("docroot", c.DocRoot)
	c.DefaultPage = m.GetString("default.page", c.DefaultPage)
	c.TimeSlot = m.GetDuration("time.slot", c.TimeSlot)
	c.MaxFD = m.GetInt("max.fd", c.MaxFD)
	c.LogLevel = m.GetString("log.level", c.LogLevel)
	c.LogFormat = m.GetString("log.format", c.LogFormat)
	c.StatsOut = m.GetString("stats.out", c.StatsOut)
	c.GCPercent = m.GetInt("gc.percent", c.GCPercent)
	c.Env = m.GetString("env", c.Env)
	c.IdleTimeout = m.GetDuration("idle.timeout", c.IdleTimeout)
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	case c.MaxRequests <= 0:
		return fmt.Errorf("%w: max requests %d", ErrInvalidConfig, c.MaxRequests)
	case c.DocRoot == "":
		return fmt.Errorf("%w: empty document root", ErrInvalidConfig)
	case c.DefaultPage == "":
		return fmt.Errorf("%w: empty default page", ErrInvalidConfig)
	case c.TimeSlot <= 0:
		return fmt.Errorf("%w: time slot %s", ErrInvalidConfig, c.TimeSlot)
	case c.IdleTimeout < c.TimeSlot:
		return fmt.Errorf("%w: idle timeout %s shorter than time slot %s", ErrInvalidConfig, c.IdleTimeout, c.TimeSlot)
	case c.MaxFD <= 0:
		return fmt.Errorf("%w: max fd %d", ErrInvalidConfig, c.MaxFD)
	case c.GCPercent < 0:
		return fmt.Errorf("%w: gc percent %d", ErrInvalidConfig, c.GCPercent)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
