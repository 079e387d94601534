// Package enforcer is the embedding entry point: Check loads the project
// configuration, scans the targets, runs every language pipeline under one
// overall deadline, writes the side logs and renders the report.
package enforcer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/enforcer/internal/config"
	"github.com/fyrsmithlabs/enforcer/internal/gitutil"
	"github.com/fyrsmithlabs/enforcer/internal/ignore"
	"github.com/fyrsmithlabs/enforcer/internal/isolation"
	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/plugin/builtin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
	"github.com/fyrsmithlabs/enforcer/internal/redact"
	"github.com/fyrsmithlabs/enforcer/internal/report"
	"github.com/fyrsmithlabs/enforcer/internal/runlog"
	"github.com/fyrsmithlabs/enforcer/internal/scanner"
	"github.com/fyrsmithlabs/enforcer/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/enforcer/pkg/enforcer"

// ErrNoModifiedFiles is returned in modified-only mode when git reports
// nothing to check.
var ErrNoModifiedFiles = errors.New("no modified files found in git status")

// Options describes one check.
type Options struct {
	// Root is the run root holding .enforcer/. Defaults to the working
	// directory.
	Root string

	// Targets are files or directories to check, relative to Root or
	// absolute. Defaults to Root.
	Targets []string

	// ModifiedOnly replaces Targets with the files git reports as changed.
	ModifiedOnly bool

	// Ignore disables rules for this run only.
	Ignore []config.RuleRef

	Verbose bool

	// Plain disables terminal styling in the rendered report.
	Plain bool

	// Timeout bounds the whole check. Zero uses pipeline.overall_timeout
	// from the configuration.
	Timeout time.Duration

	// CollectLogs captures harness progress lines into Result.Logs.
	// debug_mode_enabled in the configuration turns it on as well.
	CollectLogs bool

	// Config is used instead of loading Root's configuration.
	Config *config.Config

	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
	Progress  pipeline.ProgressCallback

	// Registry replaces the builtin plugins. Its plugins must already be
	// wired to their executor.
	Registry *plugin.Registry

	// Executor replaces the process harness used by the builtin plugins.
	Executor plugin.Executor

	// CommandCheck replaces plugin.CommandAvailable.
	CommandCheck pipeline.CommandCheck
}

// Result is the outcome of a check.
type Result struct {
	report.RunResult

	RunID string

	// Report is the rendered text report.
	Report string

	// Logs holds progress lines when log collection was enabled.
	Logs []string

	Elapsed time.Duration
}

// JSON returns the structured form of the result.
func (r *Result) JSON() ([]byte, error) {
	return report.JSON(r.RunResult)
}

// Failed reports whether any error issue was found.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// Check runs one check. Issues found are part of a successful Result; an
// error means the check itself could not run. An overall timeout is not
// an error either: the Result has TimedOut set.
func Check(ctx context.Context, opts Options) (*Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(root); err != nil {
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	tracer := opts.Telemetry.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "enforcer.check")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID), attribute.String("root", root))

	targets, err := resolveTargets(root, opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	red, err := newRedactor(root, cfg)
	if err != nil {
		return nil, err
	}

	file := cfg.File.WithIgnored(opts.Ignore...)
	runCfg := pipeline.RunConfig{
		DisabledRules:     file.DisabledRules,
		SeverityOverrides: file.Overrides(),
		ToolConfigs:       cfg.ToolConfigs,
		Verbose:           opts.Verbose,
	}

	metrics := pipeline.NewMetrics(opts.Telemetry.Meter(instrumentationName), logger)
	registry := opts.Registry
	if registry == nil {
		exec := opts.Executor
		if exec == nil {
			exec = process.New(process.Options{
				DefaultTimeout: cfg.Pipeline.CommandTimeout.Duration(),
				Serialize:      cfg.Pipeline.Serialize,
				GracePeriod:    cfg.Pipeline.GracePeriod.Duration(),
				Logger:         logger.Underlying(),
			})
		}
		var pr plugin.Redactor
		if red != nil {
			pr = red
		}
		tc := plugin.NewToolchain(metrics.Executor(exec), cfg.Pipeline.CommandTimeout.Duration(), pr)
		if registry, err = builtin.Registry(tc, builtin.Options{PythonInterpreter: cfg.Pipeline.PythonInterpreter}); err != nil {
			return nil, fmt.Errorf("failed to build plugin registry: %w", err)
		}
	}

	parser := ignore.NewParser(ignore.DefaultIgnoreFiles, ignore.DefaultFallbackPatterns)
	parser.Extra = cfg.Pipeline.Ignore
	matcher, err := parser.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore files: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = cfg.Pipeline.OverallTimeout.Duration()
	}
	policy := pipeline.Policy{
		StopOnLintError: !cfg.Pipeline.ContinueOnLintError,
		Parallelism:     cfg.Pipeline.Parallelism,
		RunTests:        !cfg.Pipeline.SkipTests,
	}

	logger.Info(ctx, "check started",
		zap.String("root", root),
		zap.Strings("targets", targets),
		zap.Duration("timeout", timeout))

	outcome := isolation.Run(ctx, isolation.Options{
		Timeout:     timeout,
		CollectLogs: opts.CollectLogs || cfg.DebugModeEnabled,
		ReapTimeout: process.DefaultWaitDelay + time.Second,
	}, func(ctx context.Context, logf isolation.Logf) (*pipeline.Result, error) {
		files, messages, err := scanner.Scan(ctx, targets, matcher, registry)
		if err != nil {
			return nil, err
		}
		logf(fmt.Sprintf("Found %d files in %d languages", files.Len(), len(files.Languages())))

		runner := pipeline.New(registry,
			pipeline.WithPolicy(policy),
			pipeline.WithLogger(logger),
			pipeline.WithTracer(tracer),
			pipeline.WithMetrics(metrics),
			pipeline.WithSink(func(line string) {
				logger.Trace(ctx, line)
				logf(line)
			}),
			pipeline.WithProgress(opts.Progress),
			pipeline.WithCommandCheck(opts.CommandCheck),
			pipeline.WithInstallHint(builtin.InstallHint),
		)
		return runner.Run(ctx, pipeline.Request{
			Root:     root,
			Files:    files,
			Config:   runCfg,
			Messages: messages,
		}), nil
	})

	res := &Result{RunID: runID, Logs: outcome.Logs, Elapsed: outcome.Elapsed}
	writer := runlog.New(root, runlog.WithRedactor(red))
	switch {
	case outcome.TimedOut:
		agg := report.NewAggregator()
		agg.MarkTimedOut(fmt.Sprintf("Check timed out after %s.", timeout))
		res.RunResult = agg.Result()
		span.SetStatus(codes.Error, "timed out")
		logger.Warn(ctx, "check timed out", zap.Duration("timeout", timeout))
		if err := writer.Reset(); err != nil {
			logger.Warn(ctx, "failed to reset side log", zap.Error(err))
		}
	case outcome.Err != nil:
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
		return nil, fmt.Errorf("check failed: %w", outcome.Err)
	default:
		res.RunResult = report.FromPipeline(outcome.Value)
		if err := writer.Write(runID, res.Languages); err != nil {
			logger.Warn(ctx, "failed to write side logs", zap.Error(err))
		}
	}

	renderer := report.Renderer{
		Verbose:      opts.Verbose,
		WarningLimit: cfg.Report.WarningLimit,
		FileLimit:    cfg.Report.FileLimit,
		Plain:        opts.Plain || cfg.Report.Plain,
	}
	res.Report = renderer.Render(res.RunResult)

	span.SetAttributes(
		attribute.Int("issues.errors", len(res.Errors)),
		attribute.Int("issues.warnings", len(res.Warnings)),
		attribute.Bool("timed_out", res.TimedOut),
	)
	logger.Info(ctx, "check finished",
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func resolveTargets(root string, opts Options) ([]string, error) {
	if opts.ModifiedOnly {
		files, err := gitutil.ModifiedFiles(root)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, ErrNoModifiedFiles
		}
		return files, nil
	}
	if len(opts.Targets) == 0 {
		return []string{root}, nil
	}
	targets := make([]string, 0, len(opts.Targets))
	for _, t := range opts.Targets {
		if !filepath.IsAbs(t) {
			t = filepath.Join(root, t)
		}
		targets = append(targets, filepath.Clean(t))
	}
	return targets, nil
}

func newRedactor(root string, cfg *config.Config) (*redact.Redactor, error) {
	if cfg.Redaction.Disabled {
		return nil, nil
	}
	r, err := redact.New(redact.Options{Root: root, ExtraAllowlists: cfg.Redaction.Allowlists})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret redaction: %w", err)
	}
	return r, nil
}
