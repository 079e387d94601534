package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
	"github.com/fyrsmithlabs/enforcer/internal/severity"
)

const instrumentationName = "github.com/fyrsmithlabs/enforcer/internal/pipeline"

// CommandCheck reports whether a required command is usable for a run
// rooted at root.
type CommandCheck func(root, cmd string) bool

// Runner drives plugins through the stages. A Runner holds no per-run
// state and may serve concurrent runs.
type Runner struct {
	registry *plugin.Registry
	policy   Policy
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	sink     process.Sink
	progress ProgressCallback
	check    CommandCheck
	hint     func(cmd string) string
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer used for language and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithMetrics enables stage and issue metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSink forwards harness progress lines to sink.
func WithSink(sink process.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithProgress sets the stage progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(r *Runner) { r.progress = cb }
}

// WithCommandCheck replaces plugin.CommandAvailable.
func WithCommandCheck(check CommandCheck) Option {
	return func(r *Runner) {
		if check != nil {
			r.check = check
		}
	}
}

// WithInstallHint sets the function suggesting how to install a missing
// command.
func WithInstallHint(hint func(cmd string) string) Option {
	return func(r *Runner) { r.hint = hint }
}

// New creates a Runner over registry.
func New(registry *plugin.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		policy:   DefaultPolicy(),
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		check:    plugin.CommandAvailable,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run is the state owned by a single Run call.
type run struct {
	root     string
	config   RunConfig
	resolver *severity.Resolver

	// warned holds commands already reported missing in this run.
	warned map[string]struct{}
}

// Run processes every language of req.Files present in the registry.
// It never returns an error: tool failures, timeouts and plugin panics
// are folded into the per-language results.
func (r *Runner) Run(ctx context.Context, req Request) *Result {
	rn := &run{
		root:     req.Root,
		config:   req.Config,
		resolver: severity.New(req.Config.DisabledRules, req.Config.SeverityOverrides),
		warned:   make(map[string]struct{}),
	}

	result := &Result{Messages: append([]string(nil), req.Messages...)}

	type job struct {
		plugin plugin.Plugin
		files  []string
		slot   int
	}
	var jobs []job

	// Tool checks run in registry order before any stage so the
	// missing-tool notifications do not depend on scheduling.
	for _, p := range r.registry.Plugins() {
		lang := p.Descriptor().Language
		files := req.Files[lang]
		if len(files) == 0 {
			continue
		}
		lr := LanguageResult{Language: lang, State: StatePending, Files: len(files)}
		r.report(Progress{Language: lang, Stage: StageToolCheck})
		if msgs, ok := r.checkTools(rn, p.Descriptor()); !ok {
			lr.State = StateSkippedMissingTools
			lr.Messages = append(msgs, fmt.Sprintf("Skipping %s due to missing plugin or tools.", lang))
			r.logger.Warn(ctx, "skipping language, required tools missing", zap.String("language", lang))
			r.metrics.recordLanguage(ctx, lang, lr.State)
			result.Languages = append(result.Languages, lr)
			continue
		}
		result.Languages = append(result.Languages, lr)
		jobs = append(jobs, job{plugin: p, files: files, slot: len(result.Languages) - 1})
	}

	g := new(errgroup.Group)
	limit := r.policy.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, j := range jobs {
		g.Go(func() error {
			result.Languages[j.slot] = r.runLanguage(ctx, rn, j.plugin, j.files)
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// checkTools resolves every required command. A command already reported
// in this run is not reported again but still fails the check.
func (r *Runner) checkTools(rn *run, d plugin.Descriptor) ([]string, bool) {
	var msgs []string
	ok := true
	for _, cmd := range d.RequiredCommands {
		if _, seen := rn.warned[cmd]; seen {
			ok = false
			continue
		}
		if r.check(rn.root, cmd) {
			continue
		}
		rn.warned[cmd] = struct{}{}
		ok = false
		msgs = append(msgs, fmt.Sprintf("Missing required tool: %s for %s. Please install it.", cmd, d.Language))
		if r.hint != nil {
			msgs = append(msgs, fmt.Sprintf("Recommendation for %s: %s", cmd, r.hint(cmd)))
		}
	}
	return msgs, ok
}

// runLanguage runs the stages of one language and always returns a
// result, even when the plugin panics.
func (r *Runner) runLanguage(ctx context.Context, rn *run, p plugin.Plugin, files []string) (lr LanguageResult) {
	d := p.Descriptor()
	lang := d.Language
	start := time.Now()
	lr = LanguageResult{Language: lang, State: StatePending, Files: len(files)}
	current := StageFormat

	ctx = logging.WithLanguage(ctx, lang)
	ctx, span := r.tracer.Start(ctx, "pipeline.language", trace.WithAttributes(
		attribute.String("language", lang),
		attribute.Int("files", len(files)),
	))

	defer func() {
		if rec := recover(); rec != nil {
			lr.Messages = append(lr.Messages, fmt.Sprintf("Internal error while checking %s during %s: %v", lang, current, rec))
			lr.State = stoppedState(current)
			r.logger.Error(ctx, "plugin panicked", zap.String("stage", string(current)), zap.Any("panic", rec))
			span.SetStatus(codes.Error, "plugin panic")
		}
		lr.Duration = time.Since(start)
		span.SetAttributes(
			attribute.String("state", string(lr.State)),
			attribute.Int("errors", len(lr.Errors)),
			attribute.Int("warnings", len(lr.Warnings)),
		)
		span.End()
		r.metrics.recordLanguage(ctx, lang, lr.State)
	}()

	if err := ctx.Err(); err != nil {
		lr.Messages = append(lr.Messages, fmt.Sprintf("Skipped %s: %v", lang, err))
		lr.State = StateStoppedAtLint
		return lr
	}

	// Format never blocks the rest of the pipeline.
	current = StageFormat
	err := r.stage(ctx, lang, StageFormat, func(ctx context.Context) error {
		res, err := p.Format(ctx, plugin.FormatRequest{
			Root:        rn.root,
			Files:       files,
			ToolConfigs: rn.config.ToolConfigs,
			Sink:        r.sink,
		})
		if err == nil {
			lr.Formatted = res.ChangedCount
		}
		return err
	})
	if err != nil {
		lr.Messages = append(lr.Messages, failureMessage(StageFormat, lang, err))
	}

	current = StageLint
	var lintIssues []issue.Issue
	err = r.stage(ctx, lang, StageLint, func(ctx context.Context) error {
		res, err := p.Lint(ctx, plugin.LintRequest{
			Root:          rn.root,
			Files:         files,
			DisabledRules: rn.resolver.DisabledFor(lang),
			ToolConfigs:   rn.config.ToolConfigs,
			Sink:          r.sink,
		})
		if err == nil {
			lintIssues = r.finish(ctx, rn, lang, res.All())
		}
		return err
	})
	if err != nil {
		lr.Messages = append(lr.Messages, failureMessage(StageLint, lang, err))
		lr.State = StateStoppedAtLint
		return lr
	}
	lr.add(lintIssues)
	if r.policy.StopOnLintError && severity.HasErrors(lintIssues) {
		lr.State = StateStoppedAtLint
		return lr
	}

	current = StageCompile
	if d.CompileFusedWithLint {
		r.report(Progress{Language: lang, Stage: StageCompile, Done: true, Message: "compile is part of lint"})
	} else {
		var compileIssues []issue.Issue
		err = r.stage(ctx, lang, StageCompile, func(ctx context.Context) error {
			res, err := p.Compile(ctx, plugin.CompileRequest{Root: rn.root, Files: files, Sink: r.sink})
			if err == nil {
				compileIssues = r.finish(ctx, rn, lang, res)
			}
			return err
		})
		if err != nil {
			lr.Messages = append(lr.Messages, failureMessage(StageCompile, lang, err))
			lr.State = StateStoppedAtCompile
			return lr
		}
		lr.add(compileIssues)
		if severity.HasErrors(compileIssues) {
			lr.State = StateStoppedAtCompile
			return lr
		}
	}

	current = StageTest
	if r.policy.RunTests {
		var testIssues []issue.Issue
		err = r.stage(ctx, lang, StageTest, func(ctx context.Context) error {
			res, err := p.Test(ctx, plugin.TestRequest{Root: rn.root, Sink: r.sink})
			if err == nil {
				testIssues = r.finish(ctx, rn, lang, res)
			}
			return err
		})
		if err != nil {
			lr.Messages = append(lr.Messages, failureMessage(StageTest, lang, err))
		}
		lr.add(testIssues)
	}

	lr.State = StateCompleted
	return lr
}

// stage wraps one plugin call with progress, a span, logging and metrics.
func (r *Runner) stage(ctx context.Context, lang string, s Stage, fn func(context.Context) error) error {
	r.report(Progress{Language: lang, Stage: s})
	ctx, span := r.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("language", lang),
		attribute.String("stage", string(s)),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	r.metrics.recordStage(ctx, lang, s, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn(ctx, "stage failed", zap.String("stage", string(s)), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		r.logger.Debug(ctx, "stage finished", zap.String("stage", string(s)), zap.Duration("elapsed", elapsed))
	}
	r.report(Progress{Language: lang, Stage: s, Done: true, Message: outcome(err)})
	return err
}

// finish applies disabled rules and severity overrides and makes file
// paths root-relative.
func (r *Runner) finish(ctx context.Context, rn *run, lang string, issues []issue.Issue) []issue.Issue {
	out := rn.resolver.Apply(lang, issues)
	for n, i := range out {
		out[n] = i.WithFile(relativize(rn.root, i.File))
	}
	r.metrics.recordIssues(ctx, lang, out)
	return out
}

func (r *Runner) report(p Progress) {
	if r.progress != nil {
		r.progress(p)
	}
}

func (lr *LanguageResult) add(issues []issue.Issue) {
	errs, warns, infos := severity.Partition(issues)
	lr.Errors = append(lr.Errors, errs...)
	lr.Warnings = append(lr.Warnings, warns...)
	lr.Infos = append(lr.Infos, infos...)
}

// relativize returns path relative to root when both are absolute and a
// relative form exists; otherwise path is returned unchanged.
func relativize(root, path string) string {
	if path == "" || root == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}

func stoppedState(s Stage) State {
	switch s {
	case StageCompile:
		return StateStoppedAtCompile
	case StageTest:
		return StateCompleted
	default:
		return StateStoppedAtLint
	}
}

func failureMessage(s Stage, lang string, err error) string {
	switch {
	case errors.Is(err, plugin.ErrToolTimeout):
		return fmt.Sprintf("%s for %s timed out", s.Title(), lang)
	case errors.Is(err, plugin.ErrToolMissing):
		return fmt.Sprintf("%s for %s tool missing: %v", s.Title(), lang, err)
	default:
		return fmt.Sprintf("%s for %s failed: %v", s.Title(), lang, err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, plugin.ErrToolTimeout):
		return "timeout"
	case errors.Is(err, plugin.ErrToolMissing):
		return "tool_missing"
	case errors.Is(err, process.ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
