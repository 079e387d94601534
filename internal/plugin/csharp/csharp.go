// Package csharp integrates the dotnet CLI. Building is the only reliable
// way to get analyzer diagnostics, so lint runs `dotnet build` and the
// compile stage defers to it.
package csharp

import (
	"context"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
)

// Language is the registry key of this plugin.
const Language = "csharp"

// Plugin implements plugin.Plugin for C#.
type Plugin struct {
	tc *plugin.Toolchain
}

// New creates the csharp plugin.
func New(tc *plugin.Toolchain) *Plugin {
	return &Plugin{tc: tc}
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Language:             Language,
		Extensions:           []string{".cs"},
		RequiredCommands:     []string{"dotnet"},
		CompileFusedWithLint: true,
	}
}

// Format runs `dotnet format` on the project. It does not report what it
// changed, so the count is always zero.
func (p *Plugin) Format(ctx context.Context, req plugin.FormatRequest) (plugin.FormatResult, error) {
	if _, err := p.tc.Run(ctx, req.Root, req.Sink, "dotnet", "format"); err != nil {
		return plugin.FormatResult{}, plugin.StageError("dotnet-format", err)
	}
	return plugin.FormatResult{}, nil
}

// Lint builds the project and reports compiler and analyzer diagnostics.
func (p *Plugin) Lint(ctx context.Context, req plugin.LintRequest) (plugin.LintResult, error) {
	var result plugin.LintResult
	res, err := p.tc.Run(ctx, req.Root, req.Sink, "dotnet", "build", "-nologo", "-consoleLoggerParameters:NoSummary")
	if err != nil {
		return result, plugin.StageError("dotnet-build", err)
	}
	issues := parseBuild(res.Combined())
	for _, iss := range issues {
		result.Add(iss)
	}
	if len(result.Errors) == 0 && !res.Success() {
		result.Add(p.tc.FailureIssue("dotnet-build", res))
	}
	return result, nil
}

// Compile is fused with Lint.
func (p *Plugin) Compile(context.Context, plugin.CompileRequest) ([]issue.Issue, error) {
	return nil, nil
}

// Test runs `dotnet test`.
func (p *Plugin) Test(ctx context.Context, req plugin.TestRequest) ([]issue.Issue, error) {
	res, err := p.tc.Run(ctx, req.Root, req.Sink, "dotnet", "test", "--nologo")
	if err != nil {
		return nil, plugin.StageError("dotnet-test", err)
	}
	if res.Success() {
		return nil, nil
	}
	return []issue.Issue{p.tc.FailureIssue("dotnet-test", res)}, nil
}
