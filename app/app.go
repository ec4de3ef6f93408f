package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/tiny-httpd/config"
	"github.com/searchktools/tiny-httpd/core"
	"github.com/searchktools/tiny-httpd/core/observability"
	"github.com/searchktools/tiny-httpd/core/pools"
)

// App is the application instance wiring configuration, logging and the engine
type App struct {
	cfg    *config.Config
	log    *logrus.Logger
	engine *core.Engine
}

// New creates an application instance
func New(cfg *config.Config) (*App, error) {
	log, err := NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}

	if cfg.GCPercent > 0 {
		prev := pools.ApplyGCConfig(pools.GCConfig{Percent: cfg.GCPercent})
		log.WithFields(logrus.Fields{"from": prev, "to": cfg.GCPercent}).Info("gc percent set")
	}

	engine, err := core.NewEngine(core.Options{
		Port:        cfg.Port,
		Workers:     cfg.Workers,
		MaxRequests: cfg.MaxRequests,
		DocRoot:     cfg.DocRoot,
		DefaultPage: cfg.DefaultPage,
		TimeSlot:    cfg.TimeSlot,
		IdleTimeout: cfg.IdleTimeout,
		MaxFD:       cfg.MaxFD,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}, nil
}

// NewLogger builds the process logger from the configured level and format
func NewLogger(cfg *config.Config, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log, nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until SIGTERM or SIGINT, then writes the statistics file if
// one was configured
func (a *App) Run() error {
	a.log.WithFields(logrus.Fields{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("tiny-httpd starting")

	runErr := a.engine.Run()

	if a.cfg.StatsOut != "" {
		if err := WriteStats(a.cfg.StatsOut, a.engine.Counters().Snapshot()); err != nil {
			a.log.WithError(err).Error("write statistics")
		} else {
			a.log.WithField("path", a.cfg.StatsOut).Info("statistics written")
		}
	}
	a.log.Info(a.engine.Counters().Snapshot().Text())

	return runErr
}

// WriteStats stores snap at path, as protobuf when the name ends in .pb
// and as JSON otherwise
func WriteStats(path string, snap observability.Snapshot) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pb") {
		data, err = snap.MarshalProto()
	} else {
		data, err = snap.MarshalJSONIndent()
	}
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write statistics: %w", err)
	}
	return nil
}
