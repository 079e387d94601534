package main

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/enforcer/internal/config"
	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/redact"
	"github.com/fyrsmithlabs/enforcer/internal/telemetry"
)

// runtime is what every command needs: configuration, logger and
// telemetry for one run root.
type runtime struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
}

func newRuntime(ctx context.Context, root string) (*runtime, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	tcfg := cfg.Telemetry
	tcfg.ServiceVersion = version
	tel, err := telemetry.New(ctx, &tcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := newLogger(cfg, root)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	if reason, degraded := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}
	return &runtime{cfg: cfg, logger: logger, telemetry: tel}, nil
}

func newLogger(cfg *config.Config, root string) (*logging.Logger, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return nil, err
	}

	lcfg := logging.NewDefaultConfig()
	lcfg.Level = lvl
	lcfg.Format = strings.ToLower(cfg.Logging.Format)
	lcfg.Output.OTEL = cfg.Telemetry.Enabled
	if !cfg.Redaction.Disabled {
		r, err := redact.New(redact.Options{Root: root, ExtraAllowlists: cfg.Redaction.Allowlists})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize secret redaction: %w", err)
		}
		lcfg.Redaction.Scrub = r.Redact
	}
	logger, err := logging.NewLogger(lcfg, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func (r *runtime) close(ctx context.Context) {
	if err := r.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = r.logger.Sync()
}
