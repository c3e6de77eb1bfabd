// ABOUTME: Shared command setup: config resolution, logging, metrics and session wiring
// ABOUTME: Builds the research API client and sessions from the loaded config

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/research-flow/internal/config"
	"github.com/2389/research-flow/internal/logging"
	"github.com/2389/research-flow/internal/metrics"
	"github.com/2389/research-flow/internal/report"
	"github.com/2389/research-flow/internal/research"
	"github.com/2389/research-flow/internal/session"
	"github.com/2389/research-flow/internal/transport"
	"github.com/2389/research-flow/internal/workflow"
)

// app bundles what every command needs: config, logger and metrics.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	closeLog   func() error

	registry         *prometheus.Registry
	transportMetrics *metrics.Transport
	sessionMetrics   *metrics.Session
}

// loadApp resolves and loads the config, applies flag overrides and sets up
// logging to logOut (or the configured file).
func loadApp(flags *rootFlags, logOut io.Writer) (*app, error) {
	path := config.Resolve(flags.configPath)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flags.apiURL != "" {
		cfg.Server.APIBaseURL = flags.apiURL
		cfg.Server.WSURL = ""
		cfg.Report.FallbackURL = ""
		if err := config.Refresh(cfg); err != nil {
			return nil, fmt.Errorf("invalid --api-url: %w", err)
		}
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	logger, closeLog, err := logging.Setup(cfg.Logging, logOut)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}

	a := &app{
		cfg:        cfg,
		configPath: path,
		logger:     logger,
		closeLog:   closeLog,
	}
	if cfg.Metrics.Enabled {
		a.registry = metrics.NewRegistry()
		a.transportMetrics = metrics.MustNewTransport(a.registry)
		a.sessionMetrics = metrics.MustNewSession(a.registry)
	}
	return a, nil
}

func (a *app) close() {
	_ = a.closeLog()
}

func (a *app) api() *research.Client {
	return research.NewClient(a.cfg.Server.APIBaseURL, nil, a.logger)
}

func (a *app) newSession(topic string) (*session.Session, error) {
	cfg := a.cfg
	return session.New(session.Options{
		Topic: topic,
		Transport: transport.Options{
			URL:                  cfg.Server.WSURL,
			HeartbeatInterval:    cfg.Transport.HeartbeatInterval,
			ReconnectDelay:       cfg.Transport.ReconnectDelay,
			MaxReconnectAttempts: cfg.Transport.MaxReconnectAttempts,
			DialTimeout:          cfg.Transport.DialTimeout,
			Metrics:              a.transportMetrics,
		},
		Policy: workflow.Policy{
			ApproveDelay: cfg.Workflow.ApproveDelay,
			RejectDelay:  cfg.Workflow.RejectDelay,
		},
		MaxIterations: cfg.Workflow.MaxIterations,
		Fetcher:       &report.HTTPFetcher{URL: cfg.Report.FallbackURL},
		ReportTimeout: cfg.Report.Timeout,
		Logger:        a.logger,
		Metrics:       a.sessionMetrics,
	})
}

// serveMetrics serves the registry until ctx ends. Without metrics enabled it
// just waits.
func (a *app) serveMetrics(ctx context.Context) error {
	if a.registry == nil {
		<-ctx.Done()
		return nil
	}
	return metrics.Serve(ctx, a.cfg.Metrics.Addr, a.cfg.Metrics.Path, a.registry, a.logger)
}
