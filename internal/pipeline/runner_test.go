package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
	"github.com/fyrsmithlabs/enforcer/internal/scanner"
	"github.com/fyrsmithlabs/enforcer/internal/telemetry"
)

// MockPlugin is a testify mock of plugin.Plugin.
type MockPlugin struct {
	mock.Mock
	desc plugin.Descriptor
}

func newMockPlugin(lang string, required ...string) *MockPlugin {
	return &MockPlugin{desc: plugin.Descriptor{
		Language:         lang,
		Extensions:       []string{"." + lang},
		RequiredCommands: required,
	}}
}

func (m *MockPlugin) Descriptor() plugin.Descriptor { return m.desc }

func (m *MockPlugin) Format(ctx context.Context, req plugin.FormatRequest) (plugin.FormatResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(plugin.FormatResult), args.Error(1)
}

func (m *MockPlugin) Lint(ctx context.Context, req plugin.LintRequest) (plugin.LintResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(plugin.LintResult), args.Error(1)
}

func (m *MockPlugin) Compile(ctx context.Context, req plugin.CompileRequest) ([]issue.Issue, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]issue.Issue), args.Error(1)
}

func (m *MockPlugin) Test(ctx context.Context, req plugin.TestRequest) ([]issue.Issue, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]issue.Issue), args.Error(1)
}

// clean expects a passing run through every stage.
func (m *MockPlugin) clean() *MockPlugin {
	m.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
	m.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
	m.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
	m.On("Test", mock.Anything, mock.Anything).Return(nil, nil)
	return m
}

func allAvailable(string, string) bool { return true }

func newRunner(t *testing.T, plugins []plugin.Plugin, opts ...Option) *Runner {
	t.Helper()
	reg, err := plugin.NewRegistry(plugins...)
	require.NoError(t, err)
	return New(reg, append([]Option{WithCommandCheck(allAvailable)}, opts...)...)
}

func lintError(file, rule string) issue.Issue {
	return issue.Issue{Tool: "lint", File: file, Line: 1, Message: "bad", Rule: rule, Severity: issue.SeverityError}
}

func TestRun_CleanLanguageCompletes(t *testing.T) {
	p := newMockPlugin("py").clean()
	var progress []Progress
	r := newRunner(t, []plugin.Plugin{p}, WithProgress(func(pr Progress) { progress = append(progress, pr) }))

	res := r.Run(context.Background(), Request{
		Root:     "/repo",
		Files:    scanner.FileSet{"py": {"/repo/a.py"}},
		Messages: []string{"Path does not exist: /nope"},
	})

	require.Len(t, res.Languages, 1)
	assert.Equal(t, StateCompleted, res.Languages[0].State)
	assert.Equal(t, 1, res.Languages[0].Files)
	assert.Equal(t, []string{"Path does not exist: /nope"}, res.Messages)
	p.AssertExpectations(t)

	var started []Stage
	for _, pr := range progress {
		if !pr.Done {
			started = append(started, pr.Stage)
		}
	}
	assert.Equal(t, AllStages(), started)
}

func TestRun_LintErrorStopsBeforeCompile(t *testing.T) {
	p := newMockPlugin("py")
	p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{ChangedCount: 2}, nil)
	p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{
		Errors:   []issue.Issue{lintError("/repo/pkg/a.py", "E1")},
		Warnings: []issue.Issue{{Tool: "lint", File: "/repo/b.py", Rule: "W1", Severity: issue.SeverityWarning}},
	}, nil)

	res := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{
		Root:  "/repo",
		Files: scanner.FileSet{"py": {"/repo/pkg/a.py", "/repo/b.py"}},
	})

	lr := res.Languages[0]
	assert.Equal(t, StateStoppedAtLint, lr.State)
	assert.Equal(t, 2, lr.Formatted)
	require.Len(t, lr.Errors, 1)
	assert.Equal(t, "pkg/a.py", lr.Errors[0].File)
	require.Len(t, lr.Warnings, 1)
	assert.Equal(t, "b.py", lr.Warnings[0].File)
	p.AssertNotCalled(t, "Compile", mock.Anything, mock.Anything)
	p.AssertNotCalled(t, "Test", mock.Anything, mock.Anything)
}

func TestRun_LintErrorsDoNotStopWhenPolicyAllows(t *testing.T) {
	p := newMockPlugin("py")
	p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
	p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{Errors: []issue.Issue{lintError("a.py", "E1")}}, nil)
	p.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
	p.On("Test", mock.Anything, mock.Anything).Return(nil, nil)

	policy := DefaultPolicy()
	policy.StopOnLintError = false
	res := newRunner(t, []plugin.Plugin{p}, WithPolicy(policy)).Run(context.Background(), Request{
		Root:  "/repo",
		Files: scanner.FileSet{"py": {"/repo/a.py"}},
	})

	assert.Equal(t, StateCompleted, res.Languages[0].State)
	p.AssertExpectations(t)
}

func TestRun_OverrideDowngradesLintError(t *testing.T) {
	p := newMockPlugin("py")
	p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
	p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{Errors: []issue.Issue{lintError("a.py", "E1")}}, nil)
	p.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
	p.On("Test", mock.Anything, mock.Anything).Return(nil, nil)

	res := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{
		Root:   "/repo",
		Files:  scanner.FileSet{"py": {"/repo/a.py"}},
		Config: RunConfig{SeverityOverrides: map[string]issue.Severity{"E1": issue.SeverityWarning}},
	})

	lr := res.Languages[0]
	assert.Equal(t, StateCompleted, lr.State)
	assert.Empty(t, lr.Errors)
	require.Len(t, lr.Warnings, 1)
	assert.Equal(t, issue.SeverityWarning, lr.Warnings[0].Severity)
}

func TestRun_DisabledRulesArePerLanguage(t *testing.T) {
	py := newMockPlugin("py")
	kt := newMockPlugin("kt")
	shared := issue.Issue{Tool: "lint", Rule: "R1", Severity: issue.SeverityWarning}
	for _, p := range []*MockPlugin{py, kt} {
		p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
		p.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
		p.On("Test", mock.Anything, mock.Anything).Return(nil, nil)
	}
	py.On("Lint", mock.Anything, mock.MatchedBy(func(req plugin.LintRequest) bool {
		return assert.ObjectsAreEqual([]string{"G1", "R1"}, req.DisabledRules)
	})).Return(plugin.LintResult{Warnings: []issue.Issue{shared}}, nil)
	kt.On("Lint", mock.Anything, mock.MatchedBy(func(req plugin.LintRequest) bool {
		return assert.ObjectsAreEqual([]string{"G1"}, req.DisabledRules)
	})).Return(plugin.LintResult{Warnings: []issue.Issue{shared}}, nil)

	res := newRunner(t, []plugin.Plugin{py, kt}).Run(context.Background(), Request{
		Root:  "/repo",
		Files: scanner.FileSet{"py": {"/repo/a.py"}, "kt": {"/repo/a.kt"}},
		Config: RunConfig{DisabledRules: map[string][]string{
			"py":     {"R1"},
			"global": {"G1"},
		}},
	})

	require.Len(t, res.Languages, 2)
	assert.Empty(t, res.Languages[0].Warnings)
	assert.Len(t, res.Languages[1].Warnings, 1)
}

func TestRun_MissingToolReportedOncePerRun(t *testing.T) {
	a := newMockPlugin("a", "shared-tool")
	b := newMockPlugin("b", "shared-tool")
	c := newMockPlugin("c", "present").clean()

	r := newRunner(t, []plugin.Plugin{a, b, c},
		WithCommandCheck(func(_, cmd string) bool { return cmd == "present" }),
		WithInstallHint(func(cmd string) string { return "get " + cmd }),
	)
	files := scanner.FileSet{"a": {"/r/x.a"}, "b": {"/r/x.b"}, "c": {"/r/x.c"}}
	res := r.Run(context.Background(), Request{Root: "/r", Files: files})

	require.Len(t, res.Languages, 3)
	assert.Equal(t, StateSkippedMissingTools, res.Languages[0].State)
	assert.Equal(t, []string{
		"Missing required tool: shared-tool for a. Please install it.",
		"Recommendation for shared-tool: get shared-tool",
		"Skipping a due to missing plugin or tools.",
	}, res.Languages[0].Messages)
	assert.Equal(t, StateSkippedMissingTools, res.Languages[1].State)
	assert.Equal(t, []string{"Skipping b due to missing plugin or tools."}, res.Languages[1].Messages)
	assert.Equal(t, StateCompleted, res.Languages[2].State)

	// The warned set belongs to the run, so a second run warns again.
	res = r.Run(context.Background(), Request{Root: "/r", Files: files})
	assert.Len(t, res.Languages[0].Messages, 3)

	a.AssertNotCalled(t, "Format", mock.Anything, mock.Anything)
	b.AssertNotCalled(t, "Format", mock.Anything, mock.Anything)
}

func TestRun_StageFailures(t *testing.T) {
	timeout := fmt.Errorf("tsc: %w: %w", plugin.ErrToolTimeout, process.ErrTimedOut)
	missing := fmt.Errorf("pytest: %w", plugin.ErrToolMissing)

	t.Run("format failure does not block", func(t *testing.T) {
		p := newMockPlugin("py")
		p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{ChangedCount: 3}, timeout)
		p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
		p.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
		p.On("Test", mock.Anything, mock.Anything).Return(nil, nil)

		lr := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{"py": {"a"}}}).Languages[0]
		assert.Equal(t, StateCompleted, lr.State)
		assert.Zero(t, lr.Formatted)
		assert.Equal(t, []string{"Format for py timed out"}, lr.Messages)
	})

	t.Run("lint timeout discards output", func(t *testing.T) {
		p := newMockPlugin("py")
		p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
		p.On("Lint", mock.Anything, mock.Anything).
			Return(plugin.LintResult{Errors: []issue.Issue{lintError("a", "E")}}, timeout)

		lr := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{"py": {"a"}}}).Languages[0]
		assert.Equal(t, StateStoppedAtLint, lr.State)
		assert.Empty(t, lr.Errors)
		assert.Equal(t, []string{"Lint for py timed out"}, lr.Messages)
	})

	t.Run("compile timeout", func(t *testing.T) {
		p := newMockPlugin("ts")
		p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
		p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
		p.On("Compile", mock.Anything, mock.Anything).Return(nil, timeout)

		lr := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{"ts": {"a"}}}).Languages[0]
		assert.Equal(t, StateStoppedAtCompile, lr.State)
		assert.Equal(t, []string{"Compile for ts timed out"}, lr.Messages)
		p.AssertNotCalled(t, "Test", mock.Anything, mock.Anything)
	})

	t.Run("compile errors stop before test", func(t *testing.T) {
		p := newMockPlugin("ts")
		p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
		p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
		p.On("Compile", mock.Anything, mock.Anything).Return([]issue.Issue{lintError("a.ts", "TS2304")}, nil)

		lr := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{"ts": {"a"}}}).Languages[0]
		assert.Equal(t, StateStoppedAtCompile, lr.State)
		assert.Len(t, lr.Errors, 1)
		p.AssertNotCalled(t, "Test", mock.Anything, mock.Anything)
	})

	t.Run("test tool missing still completes", func(t *testing.T) {
		p := newMockPlugin("py")
		p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
		p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
		p.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
		p.On("Test", mock.Anything, mock.Anything).Return(nil, missing)

		lr := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{"py": {"a"}}}).Languages[0]
		assert.Equal(t, StateCompleted, lr.State)
		require.Len(t, lr.Messages, 1)
		assert.Contains(t, lr.Messages[0], "Test for py tool missing")
	})
}

func TestRun_FusedCompileIsNotCalled(t *testing.T) {
	p := newMockPlugin("cs")
	p.desc.CompileFusedWithLint = true
	p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
	p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
	p.On("Test", mock.Anything, mock.Anything).Return(nil, nil)

	lr := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{"cs": {"a.cs"}}}).Languages[0]
	assert.Equal(t, StateCompleted, lr.State)
	p.AssertNotCalled(t, "Compile", mock.Anything, mock.Anything)
}

func TestRun_PanicIsContained(t *testing.T) {
	bad := newMockPlugin("bad")
	bad.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
	bad.On("Lint", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") })
	good := newMockPlugin("good").clean()

	logger := logging.NewTestLogger()
	res := newRunner(t, []plugin.Plugin{bad, good}, WithLogger(logger.Logger)).Run(context.Background(), Request{
		Files: scanner.FileSet{"bad": {"x"}, "good": {"y"}},
	})

	require.Len(t, res.Languages, 2)
	assert.Equal(t, StateStoppedAtLint, res.Languages[0].State)
	require.Len(t, res.Languages[0].Messages, 1)
	assert.Contains(t, res.Languages[0].Messages[0], "boom")
	assert.Equal(t, StateCompleted, res.Languages[1].State)
	logger.AssertLogged(t, zapcore.ErrorLevel, "plugin panicked")
}

func TestRun_ParallelKeepsRegistryOrder(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	var plugins []plugin.Plugin
	files := scanner.FileSet{}
	for _, lang := range []string{"a", "b", "c", "d"} {
		p := newMockPlugin(lang)
		p.On("Format", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			mu.Lock()
			calls++
			mu.Unlock()
		}).Return(plugin.FormatResult{}, nil)
		p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{}, nil)
		p.On("Compile", mock.Anything, mock.Anything).Return(nil, nil)
		p.On("Test", mock.Anything, mock.Anything).Return(nil, nil)
		plugins = append(plugins, p)
		files[lang] = []string{"/r/f." + lang}
	}

	policy := DefaultPolicy()
	policy.Parallelism = 4
	res := newRunner(t, plugins, WithPolicy(policy)).Run(context.Background(), Request{Root: "/r", Files: files})

	require.Len(t, res.Languages, 4)
	for n, lang := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, lang, res.Languages[n].Language)
		assert.Equal(t, StateCompleted, res.Languages[n].State)
	}
	assert.Equal(t, 4, calls)
}

func TestRun_CancelledContextSkipsLanguages(t *testing.T) {
	p := newMockPlugin("py")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lr := newRunner(t, []plugin.Plugin{p}).Run(ctx, Request{Files: scanner.FileSet{"py": {"a"}}}).Languages[0]
	assert.NotEqual(t, StateCompleted, lr.State)
	require.Len(t, lr.Messages, 1)
	assert.Contains(t, lr.Messages[0], "Skipped py")
	p.AssertNotCalled(t, "Format", mock.Anything, mock.Anything)
}

func TestRun_LanguagesWithoutFilesAreAbsent(t *testing.T) {
	p := newMockPlugin("py")
	res := newRunner(t, []plugin.Plugin{p}).Run(context.Background(), Request{Files: scanner.FileSet{}})
	assert.Empty(t, res.Languages)
}

func TestRun_Telemetry(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	ctx := context.Background()

	p := newMockPlugin("py")
	p.On("Format", mock.Anything, mock.Anything).Return(plugin.FormatResult{}, nil)
	p.On("Lint", mock.Anything, mock.Anything).Return(plugin.LintResult{
		Errors:   []issue.Issue{lintError("a.py", "E1")},
		Warnings: []issue.Issue{{Rule: "W1", Severity: issue.SeverityWarning}, {Rule: "W2", Severity: issue.SeverityWarning}},
	}, nil)

	r := newRunner(t, []plugin.Plugin{p},
		WithTracer(tt.Tracer("test")),
		WithMetrics(NewMetrics(tt.Meter("test"), nil)),
	)
	r.Run(ctx, Request{Files: scanner.FileSet{"py": {"a.py"}}})

	tt.AssertSpanExists(t, "pipeline.language")
	assert.Len(t, tt.SpansNamed("pipeline.stage"), 2)
	state, ok := tt.SpanAttribute("pipeline.language", "state")
	require.True(t, ok)
	assert.Equal(t, string(StateStoppedAtLint), state)

	issues, ok := tt.CounterValue(ctx, "enforcer.pipeline.issues_total")
	require.True(t, ok)
	assert.Equal(t, int64(3), issues)

	stages, ok := tt.CounterValue(ctx, "enforcer.pipeline.stage.runs_total")
	require.True(t, ok)
	assert.Equal(t, int64(2), stages)
}

func TestMetrics_ExecutorCountsInvocations(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	ctx := context.Background()
	m := NewMetrics(tt.Meter("test"), nil)

	inner := &stubExecutor{res: &process.Result{Status: process.StatusExited}}
	exec := m.Executor(inner)
	_, err := exec.Execute(ctx, process.Command{Args: []string{"/usr/bin/npx", "eslint"}})
	require.NoError(t, err)
	_, _ = exec.Execute(ctx, process.Command{Args: []string{"dotnet.exe"}})

	n, ok := tt.CounterValue(ctx, "enforcer.tool.invocations_total")
	require.True(t, ok)
	assert.Equal(t, int64(2), n)

	var nilMetrics *Metrics
	assert.Same(t, inner, nilMetrics.Executor(inner))
}

type stubExecutor struct {
	res *process.Result
}

func (s *stubExecutor) Execute(context.Context, process.Command) (*process.Result, error) {
	return s.res, nil
}

func TestRelativize(t *testing.T) {
	assert.Equal(t, "pkg/a.py", relativize("/repo", "/repo/pkg/a.py"))
	assert.Equal(t, "a.py", relativize("/repo", "a.py"))
	assert.Equal(t, "", relativize("/repo", ""))
	assert.Equal(t, "/x/a.py", relativize("", "/x/a.py"))
}
