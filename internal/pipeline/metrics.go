package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
)

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	stageRuns     metric.Int64Counter
	stageDuration metric.Float64Histogram
	issues        metric.Int64Counter
	languages     metric.Int64Counter
	invocations   metric.Int64Counter
}

// NewMetrics creates the instruments on meter. Instruments that fail to
// register are logged and skipped.
func NewMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "failed to create instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &Metrics{}
	var err error

	m.stageRuns, err = meter.Int64Counter(
		"enforcer.pipeline.stage.runs_total",
		metric.WithDescription("Pipeline stages executed, by outcome"),
		metric.WithUnit("{stage}"),
	)
	warn("stage runs", err)

	m.stageDuration, err = meter.Float64Histogram(
		"enforcer.pipeline.stage.duration_seconds",
		metric.WithDescription("Duration of pipeline stages"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	warn("stage duration", err)

	m.issues, err = meter.Int64Counter(
		"enforcer.pipeline.issues_total",
		metric.WithDescription("Issues reported after severity resolution"),
		metric.WithUnit("{issue}"),
	)
	warn("issues", err)

	m.languages, err = meter.Int64Counter(
		"enforcer.pipeline.languages_total",
		metric.WithDescription("Languages processed, by terminal state"),
		metric.WithUnit("{language}"),
	)
	warn("languages", err)

	m.invocations, err = meter.Int64Counter(
		"enforcer.tool.invocations_total",
		metric.WithDescription("External tool invocations, by status"),
		metric.WithUnit("{invocation}"),
	)
	warn("tool invocations", err)

	return m
}

func (m *Metrics) recordStage(ctx context.Context, lang string, s Stage, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("language", lang),
		attribute.String("stage", string(s)),
	)
	if m.stageRuns != nil {
		m.stageRuns.Add(ctx, 1, metric.WithAttributes(
			attribute.String("language", lang),
			attribute.String("stage", string(s)),
			attribute.String("outcome", outcome(err)),
		))
	}
	if m.stageDuration != nil {
		m.stageDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *Metrics) recordIssues(ctx context.Context, lang string, issues []issue.Issue) {
	if m == nil || m.issues == nil || len(issues) == 0 {
		return
	}
	counts := make(map[issue.Severity]int64, 3)
	for _, i := range issues {
		counts[i.Severity]++
	}
	for sev, n := range counts {
		m.issues.Add(ctx, n, metric.WithAttributes(
			attribute.String("language", lang),
			attribute.String("severity", string(sev)),
		))
	}
}

func (m *Metrics) recordLanguage(ctx context.Context, lang string, state State) {
	if m == nil || m.languages == nil {
		return
	}
	m.languages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("language", lang),
		attribute.String("state", string(state)),
	))
}

// Executor wraps next so every external tool invocation is counted by
// executable name and harness status.
func (m *Metrics) Executor(next plugin.Executor) plugin.Executor {
	if m == nil || m.invocations == nil {
		return next
	}
	return &countingExecutor{next: next, counter: m.invocations}
}

type countingExecutor struct {
	next    plugin.Executor
	counter metric.Int64Counter
}

func (e *countingExecutor) Execute(ctx context.Context, c process.Command) (*process.Result, error) {
	res, err := e.next.Execute(ctx, c)
	tool := "unknown"
	if len(c.Args) > 0 {
		tool = strings.TrimSuffix(filepath.Base(c.Args[0]), ".exe")
	}
	status := "error"
	if res != nil {
		status = res.Status.String()
	}
	e.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	return res, err
}
