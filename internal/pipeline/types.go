// Package pipeline runs the per-language quality stages over a scanned
// file set.
//
// Every language goes through ToolCheck, Format, Lint, Compile and Test in
// that order. Languages are independent of each other: a missing tool, a
// timeout or even a panic in one plugin only ends that language.
package pipeline

import (
	"time"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/scanner"
)

// Stage is one step of the per-language pipeline.
type Stage string

const (
	StageToolCheck Stage = "tool_check"
	StageFormat    Stage = "format"
	StageLint      Stage = "lint"
	StageCompile   Stage = "compile"
	StageTest      Stage = "test"
)

// AllStages returns the stages in execution order.
func AllStages() []Stage {
	return []Stage{StageToolCheck, StageFormat, StageLint, StageCompile, StageTest}
}

// Title is the human label used in progress and failure messages.
func (s Stage) Title() string {
	switch s {
	case StageToolCheck:
		return "Tool check"
	case StageFormat:
		return "Format"
	case StageLint:
		return "Lint"
	case StageCompile:
		return "Compile"
	case StageTest:
		return "Test"
	}
	return string(s)
}

// State is the terminal state of one language.
type State string

const (
	StatePending             State = "pending"
	StateCompleted           State = "completed"
	StateSkippedMissingTools State = "skipped_missing_tools"
	StateStoppedAtLint       State = "stopped_at_lint"
	StateStoppedAtCompile    State = "stopped_at_compile"
)

// RunConfig is the per-run configuration. It is loaded once and never
// mutated while a run is in flight.
type RunConfig struct {
	// DisabledRules maps a language, or "global", to rule ids.
	DisabledRules map[string][]string `json:"disabled_rules"`

	// SeverityOverrides maps a rule id to its final severity.
	SeverityOverrides map[string]issue.Severity `json:"severity_overrides"`

	// ToolConfigs maps a tool name to its config file path.
	ToolConfigs map[string]string `json:"tool_configs"`

	Verbose bool `json:"verbose"`
}

// Policy tunes how the runner schedules and stops.
type Policy struct {
	// StopOnLintError stops a language after lint when lint reported
	// errors. Warnings never stop it.
	StopOnLintError bool

	// Parallelism is the number of languages processed at once. Values
	// below 1 mean sequential.
	Parallelism int

	// RunTests enables the Test stage.
	RunTests bool
}

// DefaultPolicy is strict and sequential.
func DefaultPolicy() Policy {
	return Policy{StopOnLintError: true, Parallelism: 1, RunTests: true}
}

// Request is the input of one run.
type Request struct {
	Root     string
	Files    scanner.FileSet
	Config   RunConfig
	Messages []string
}

// LanguageResult is the outcome of one language.
type LanguageResult struct {
	Language  string        `json:"language"`
	State     State         `json:"state"`
	Files     int           `json:"files"`
	Formatted int           `json:"formatted"`
	Errors    []issue.Issue `json:"errors"`
	Warnings  []issue.Issue `json:"warnings"`
	Infos     []issue.Issue `json:"infos"`
	Messages  []string      `json:"messages"`
	Duration  time.Duration `json:"duration_ns"`
}

// Issues returns every issue of the language in report order.
func (r LanguageResult) Issues() []issue.Issue {
	out := make([]issue.Issue, 0, len(r.Errors)+len(r.Warnings)+len(r.Infos))
	out = append(out, r.Errors...)
	out = append(out, r.Warnings...)
	return append(out, r.Infos...)
}

// Result is the outcome of a run: the scan messages plus one entry per
// language, in registry order.
type Result struct {
	Messages  []string         `json:"messages"`
	Languages []LanguageResult `json:"languages"`
}

// Progress reports a stage transition.
type Progress struct {
	Language string
	Stage    Stage
	Done     bool
	Message  string
}

// ProgressCallback receives progress updates during a run. It may be
// called from several goroutines when languages run in parallel.
type ProgressCallback func(p Progress)
