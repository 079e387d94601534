// Package kotlin drives the project's Gradle wrapper: ktlint and detekt
// for lint, assemble for compile and the test task for tests.
package kotlin

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
)

// Language is the registry key of this plugin.
const Language = "kotlin"

const gradlew = "./gradlew"

// Plugin implements plugin.Plugin for Kotlin.
type Plugin struct {
	tc *plugin.Toolchain
}

// New creates the kotlin plugin.
func New(tc *plugin.Toolchain) *Plugin {
	return &Plugin{tc: tc}
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Language:         Language,
		Extensions:       []string{".kt", ".kts"},
		RequiredCommands: []string{gradlew},
	}
}

func (p *Plugin) gradle(ctx context.Context, root string, sink process.Sink, task string, extra ...string) (*process.Result, error) {
	args := append([]string{gradlew, task, "--console=plain"}, extra...)
	return p.tc.Run(ctx, root, sink, args...)
}

// Format runs ktlintFormat. Gradle does not report touched files.
func (p *Plugin) Format(ctx context.Context, req plugin.FormatRequest) (plugin.FormatResult, error) {
	if _, err := p.gradle(ctx, req.Root, req.Sink, "ktlintFormat", "--quiet"); err != nil {
		return plugin.FormatResult{}, plugin.StageError("ktlint", err)
	}
	return plugin.FormatResult{}, nil
}

// Lint runs ktlintCheck then detekt. Both only produce warnings. A task
// the build does not define is reported as a tool-missing warning.
func (p *Plugin) Lint(ctx context.Context, req plugin.LintRequest) (plugin.LintResult, error) {
	var result plugin.LintResult
	checks := []struct {
		tool  string
		task  string
		parse func(string) []issue.Issue
	}{
		{tool: "ktlint", task: "ktlintCheck", parse: parseKtlint},
		{tool: "detekt", task: "detekt", parse: parseDetekt},
	}
	for _, c := range checks {
		res, err := p.gradle(ctx, req.Root, req.Sink, c.task)
		if err != nil {
			return plugin.LintResult{}, plugin.StageError(c.tool, err)
		}
		out := res.Combined()
		if task, ok := missingTask(out); ok && !res.Success() {
			result.Add(issue.Issue{
				Tool:     c.tool,
				Message:  fmt.Sprintf("Gradle task %q is not defined; apply the %s plugin to enable this check", task, c.tool),
				Rule:     issue.RuleToolMissing,
				Severity: issue.SeverityWarning,
			})
			continue
		}
		issues := c.parse(out)
		for _, iss := range issues {
			result.Add(iss)
		}
		if len(issues) == 0 && !res.Success() {
			result.Add(p.tc.FailureIssue(c.tool, res).WithSeverity(issue.SeverityWarning))
		}
	}
	return result, nil
}

// Compile runs assemble. Compiler diagnostics are reported individually
// when they can be recognised.
func (p *Plugin) Compile(ctx context.Context, req plugin.CompileRequest) ([]issue.Issue, error) {
	res, err := p.gradle(ctx, req.Root, req.Sink, "assemble")
	if err != nil {
		return nil, plugin.StageError("gradle-assemble", err)
	}
	if res.Success() {
		return nil, nil
	}
	issues := parseKotlinc(res.Combined())
	for _, iss := range issues {
		if iss.Severity == issue.SeverityError {
			return issues, nil
		}
	}
	return append(issues, p.tc.FailureIssue("gradle-assemble", res)), nil
}

// Test runs the Gradle test task.
func (p *Plugin) Test(ctx context.Context, req plugin.TestRequest) ([]issue.Issue, error) {
	res, err := p.gradle(ctx, req.Root, req.Sink, "test")
	if err != nil {
		return nil, plugin.StageError("gradle-test", err)
	}
	if res.Success() {
		return nil, nil
	}
	return []issue.Issue{p.tc.FailureIssue("gradle-test", res)}, nil
}
