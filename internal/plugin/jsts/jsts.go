// Package jsts integrates prettier, eslint, tsc and jest for JavaScript and
// TypeScript sources. All tools are resolved through npx from the project's
// own node_modules; npx is never allowed to download a missing package.
package jsts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/process"
)

// Language is the registry key of this plugin.
const Language = "js_ts"

// Plugin implements plugin.Plugin for JavaScript and TypeScript.
type Plugin struct {
	tc *plugin.Toolchain
}

// New creates the js_ts plugin.
func New(tc *plugin.Toolchain) *Plugin {
	return &Plugin{tc: tc}
}

func (p *Plugin) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Language:         Language,
		Extensions:       []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".d.ts"},
		RequiredCommands: []string{"npx"},
	}
}

// npx runs a locally installed node tool. A package npx cannot find is
// reported as plugin.ErrToolMissing.
func (p *Plugin) npx(ctx context.Context, root string, sink process.Sink, tool string, args ...string) (*process.Result, error) {
	argv := append([]string{"npx", "--no", tool}, args...)
	res, err := p.tc.Run(ctx, root, sink, argv...)
	if err != nil {
		return res, plugin.StageError(tool, err)
	}
	if !res.Success() && npxMissing.MatchString(res.Combined()) {
		return res, fmt.Errorf("%s: %w", tool, plugin.ErrToolMissing)
	}
	return res, nil
}

func configArgs(tool string, configs map[string]string) []string {
	if cfg, ok := configs[tool]; ok && cfg != "" {
		return []string{"--config", cfg}
	}
	return nil
}

// Format counts the files prettier would change, then rewrites them.
func (p *Plugin) Format(ctx context.Context, req plugin.FormatRequest) (plugin.FormatResult, error) {
	if len(req.Files) == 0 {
		return plugin.FormatResult{}, nil
	}
	cfg := configArgs("prettier", req.ToolConfigs)

	listArgs := append(append([]string{"--list-different"}, cfg...), req.Files...)
	listed, err := p.npx(ctx, req.Root, req.Sink, "prettier", listArgs...)
	if err != nil {
		return plugin.FormatResult{}, err
	}
	changed := listedFiles(listed.Stdout)
	if changed == 0 {
		return plugin.FormatResult{}, nil
	}

	writeArgs := append(append([]string{"--write"}, cfg...), req.Files...)
	if _, err := p.npx(ctx, req.Root, req.Sink, "prettier", writeArgs...); err != nil {
		return plugin.FormatResult{}, err
	}
	return plugin.FormatResult{ChangedCount: changed}, nil
}

// Lint runs eslint with its JSON formatter. Disabled rules are not passed
// through: eslint rejects unknown rule ids, so filtering is left to the
// severity resolver.
func (p *Plugin) Lint(ctx context.Context, req plugin.LintRequest) (plugin.LintResult, error) {
	var result plugin.LintResult
	if len(req.Files) == 0 {
		return result, nil
	}
	args := append(append([]string{"--format", "json"}, configArgs("eslint", req.ToolConfigs)...), req.Files...)
	res, err := p.npx(ctx, req.Root, req.Sink, "eslint", args...)
	if err != nil {
		return plugin.LintResult{}, err
	}
	if strings.TrimSpace(res.Stdout) == "" {
		if !res.Success() {
			result.Add(p.tc.FailureIssue("eslint", res))
		}
		return result, nil
	}
	for _, iss := range parseESLint(res.Stdout) {
		result.Add(iss)
	}
	return result, nil
}

// Compile type-checks with tsc. With a tsconfig.json at the root the whole
// project is checked; otherwise only the TypeScript files of the run are,
// and a pure JavaScript run skips the stage.
func (p *Plugin) Compile(ctx context.Context, req plugin.CompileRequest) ([]issue.Issue, error) {
	args := []string{"--noEmit", "--pretty", "false"}
	if _, err := os.Stat(filepath.Join(req.Root, "tsconfig.json")); err != nil {
		ts := typeScriptFiles(req.Files)
		if len(ts) == 0 {
			return nil, nil
		}
		args = append(args, ts...)
	}
	res, err := p.npx(ctx, req.Root, req.Sink, "tsc", args...)
	if err != nil {
		return nil, err
	}
	if res.Success() {
		return nil, nil
	}
	issues := parseTSC(res.Stdout)
	if len(issues) == 0 {
		issues = append(issues, p.tc.FailureIssue("tsc", res))
	}
	return issues, nil
}

func typeScriptFiles(files []string) []string {
	var out []string
	for _, f := range files {
		switch strings.ToLower(filepath.Ext(f)) {
		case ".ts", ".tsx":
			out = append(out, f)
		}
	}
	return out
}

// Test runs jest over the root; a project without tests passes.
func (p *Plugin) Test(ctx context.Context, req plugin.TestRequest) ([]issue.Issue, error) {
	res, err := p.npx(ctx, req.Root, req.Sink, "jest", "--ci", "--passWithNoTests", req.Root)
	if err != nil {
		return nil, err
	}
	if res.Success() {
		return nil, nil
	}
	return []issue.Issue{p.tc.FailureIssue("jest", res)}, nil
}
