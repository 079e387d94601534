// Package python integrates black, isort, pyright, flake8, mypy,
// py_compile and pytest. Every tool runs as `<interpreter> -m <module>` so
// the project's active environment decides which versions are used.
package python

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
)

// Language is the registry key of this plugin.
const Language = "python"

// DefaultInterpreter is used unless WithInterpreter overrides it.
const DefaultInterpreter = "python3"

// pytest exits 5 when it collected no tests.
const pytestNoTests = 5

// Plugin implements plugin.Plugin for Python.
type Plugin struct {
	tc          *plugin.Toolchain
	interpreter string
}

// Option configures the plugin.
type Option func(*Plugin)

// WithInterpreter selects the Python executable.
func WithInterpreter(path string) Option {
	return func(p *Plugin) {
		if path != "" {
			p.interpreter = path
		}
	}
}

// New creates the Python plugin.
func New(tc *plugin.Toolchain, opts ...Option) *Plugin {
	p := &Plugin{tc: tc, interpreter: DefaultInterpreter}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Language:         Language,
		Extensions:       []string{".py", ".pyi"},
		RequiredCommands: []string{p.interpreter},
	}
}

func (p *Plugin) module(ctx context.Context, root string, sink process.Sink, mod string, args ...string) (*process.Result, error) {
	argv := append([]string{p.interpreter, "-m", mod}, args...)
	return p.tc.Run(ctx, root, sink, argv...)
}

// absent reports whether mod itself is not installed. An import error for
// any other module is a finding of the tool, not a missing tool.
func absent(res *process.Result, mod string) bool {
	if res.Success() {
		return false
	}
	for _, name := range missingModules(res.Stderr) {
		if isModule(name, mod) {
			return true
		}
	}
	return false
}

func withConfig(tool, flag string, configs map[string]string, args []string) []string {
	if cfg, ok := configs[tool]; ok && cfg != "" {
		return append(args, flag, cfg)
	}
	return args
}

// Format runs black then isort and counts distinct rewritten files.
func (p *Plugin) Format(ctx context.Context, req plugin.FormatRequest) (plugin.FormatResult, error) {
	if len(req.Files) == 0 {
		return plugin.FormatResult{}, nil
	}

	blackArgs := withConfig("black", "--config", req.ToolConfigs, nil)
	blackRes, err := p.module(ctx, req.Root, req.Sink, "black", append(blackArgs, req.Files...)...)
	if err != nil {
		return plugin.FormatResult{}, plugin.StageError("black", err)
	}

	isortArgs := withConfig("isort", "--settings-path", req.ToolConfigs, nil)
	isortRes, err := p.module(ctx, req.Root, req.Sink, "isort", append(isortArgs, req.Files...)...)
	if err != nil {
		return plugin.FormatResult{ChangedCount: len(changedFiles(blackRes.Stderr, ""))}, plugin.StageError("isort", err)
	}

	return plugin.FormatResult{
		ChangedCount: len(changedFiles(blackRes.Stderr, isortRes.Stdout+isortRes.Stderr)),
	}, nil
}

// Lint runs pyright, flake8 and mypy. A module that is not installed is
// reported as a tool-missing warning; if none of them is installed the
// stage fails with plugin.ErrToolMissing.
func (p *Plugin) Lint(ctx context.Context, req plugin.LintRequest) (plugin.LintResult, error) {
	var result plugin.LintResult
	if len(req.Files) == 0 {
		return result, nil
	}
	var missing []string

	type linter struct {
		module string
		args   []string
		parse  func(string) []issue.Issue
		output func(*process.Result) string
	}
	flake8Args := []string{}
	if len(req.DisabledRules) > 0 {
		flake8Args = append(flake8Args, "--ignore="+strings.Join(req.DisabledRules, ","))
	}
	linters := []linter{
		{
			module: "pyright",
			args:   []string{"--outputjson"},
			parse:  parsePyright,
			output: func(r *process.Result) string { return r.Stdout },
		},
		{
			module: "flake8",
			args:   withConfig("flake8", "--config", req.ToolConfigs, flake8Args),
			parse:  parseFlake8,
			output: func(r *process.Result) string { return r.Stdout },
		},
		{
			module: "mypy",
			args:   withConfig("mypy", "--config-file", req.ToolConfigs, []string{"--no-error-summary", "--no-color-output"}),
			parse:  parseMypy,
			output: func(r *process.Result) string { return r.Stdout },
		},
	}

	for _, l := range linters {
		res, err := p.module(ctx, req.Root, req.Sink, l.module, append(l.args, req.Files...)...)
		if err != nil {
			return plugin.LintResult{}, plugin.StageError(l.module, err)
		}
		if absent(res, l.module) {
			missing = append(missing, l.module)
			continue
		}
		out := l.output(res)
		switch {
		case strings.TrimSpace(out) != "":
			for _, iss := range l.parse(out) {
				result.Add(iss)
			}
		case !res.Success():
			result.Add(p.tc.FailureIssue(l.module, res))
		}
	}

	if len(missing) == len(linters) {
		return plugin.LintResult{}, fmt.Errorf("%w: %s", plugin.ErrToolMissing, strings.Join(missing, ", "))
	}
	for _, mod := range missing {
		result.Add(issue.Issue{
			Tool:     mod,
			Message:  fmt.Sprintf("%s is not installed for %s; install it to enable this check", mod, p.interpreter),
			Rule:     issue.RuleToolMissing,
			Severity: issue.SeverityWarning,
		})
	}
	return result, nil
}

// Compile byte-compiles each file separately so one syntax error does not
// hide the others.
func (p *Plugin) Compile(ctx context.Context, req plugin.CompileRequest) ([]issue.Issue, error) {
	var issues []issue.Issue
	for _, file := range req.Files {
		res, err := p.module(ctx, req.Root, req.Sink, "py_compile", file)
		if err != nil {
			return nil, plugin.StageError("py_compile", err)
		}
		if !res.Success() {
			issues = append(issues, parseCompileError(file, res.Stderr))
		}
	}
	return issues, nil
}

// Test runs pytest over the run root.
func (p *Plugin) Test(ctx context.Context, req plugin.TestRequest) ([]issue.Issue, error) {
	res, err := p.module(ctx, req.Root, req.Sink, "pytest", "-q", req.Root)
	if err != nil {
		return nil, plugin.StageError("pytest", err)
	}
	switch {
	case res.Success(), res.ExitCode == pytestNoTests:
		return nil, nil
	case absent(res, "pytest"):
		return nil, fmt.Errorf("%w: pytest", plugin.ErrToolMissing)
	}
	return []issue.Issue{p.tc.FailureIssue("pytest", res)}, nil
}
