// Package plugin defines the contract every language integration implements
// and the ordered registry the scanner and pipeline consult.
//
// A plugin wraps a handful of external tools for one language and exposes
// them as four stages: format, lint, compile and test. Stages translate raw
// tool output into issue.Issue values through pure parse functions so new
// tools can be added without touching the pipeline.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use by
//     independent runs.
//   - Context: stages must honour cancellation; the process harness kills
//     in-flight tools when ctx ends.
//   - Errors: a missing tool wraps ErrToolMissing, a timeout wraps
//     ErrToolTimeout. Neither is ever reported as an empty success.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/process"
)

var (
	// ErrToolMissing indicates a stage could not locate its external tool.
	ErrToolMissing = errors.New("tool missing")

	// ErrToolTimeout indicates a stage's external tool exceeded its deadline.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrDuplicateLanguage is returned when two plugins claim one language.
	ErrDuplicateLanguage = errors.New("language already registered")
)

// Descriptor is the static description of a plugin.
type Descriptor struct {
	// Language is the registry key, e.g. "python".
	Language string

	// Extensions are lower-case and dot-prefixed.
	Extensions []string

	// RequiredCommands are checked before any stage runs. Entries such as
	// "./gradlew" resolve against the run root rather than PATH.
	RequiredCommands []string

	// CompileFusedWithLint declares that Lint already performs the build and
	// Compile is a no-op deferring to Lint's output.
	CompileFusedWithLint bool
}

// FormatRequest is the input of the format stage.
type FormatRequest struct {
	Root        string
	Files       []string
	ToolConfigs map[string]string
	Sink        process.Sink
}

// FormatResult reports how many files the formatter changed. Zero is an
// acceptable answer when the tool cannot tell.
type FormatResult struct {
	ChangedCount int
}

// LintRequest is the input of the lint stage.
type LintRequest struct {
	Root          string
	Files         []string
	DisabledRules []string
	ToolConfigs   map[string]string
	Sink          process.Sink
}

// LintResult partitions findings by the tools' own severity signal.
type LintResult struct {
	Errors   []issue.Issue
	Warnings []issue.Issue
}

// Add files i under Errors or Warnings according to its severity.
func (r *LintResult) Add(i issue.Issue) {
	if i.Severity == issue.SeverityError {
		r.Errors = append(r.Errors, i)
		return
	}
	r.Warnings = append(r.Warnings, i)
}

// All returns errors followed by warnings.
func (r LintResult) All() []issue.Issue {
	out := make([]issue.Issue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// CompileRequest is the input of the compile stage.
type CompileRequest struct {
	Root  string
	Files []string
	Sink  process.Sink
}

// TestRequest is the input of the test stage.
type TestRequest struct {
	Root string
	Sink process.Sink
}

// Plugin is one language integration.
type Plugin interface {
	Descriptor() Descriptor
	Format(ctx context.Context, req FormatRequest) (FormatResult, error)
	Lint(ctx context.Context, req LintRequest) (LintResult, error)
	Compile(ctx context.Context, req CompileRequest) ([]issue.Issue, error)
	Test(ctx context.Context, req TestRequest) ([]issue.Issue, error)
}

// ResolveCommand maps a required command to the path that should be
// checked or executed: wrapper scripts ("./gradlew") resolve against root.
func ResolveCommand(root, cmd string) string {
	if strings.HasPrefix(cmd, "./") || strings.HasPrefix(cmd, `.\`) {
		return filepath.Join(root, cmd[2:])
	}
	return cmd
}

// CommandAvailable reports whether cmd can be executed for a run at root.
func CommandAvailable(root, cmd string) bool {
	return process.Available(ResolveCommand(root, cmd), root)
}

// StageError converts a harness error into the plugin error taxonomy.
// Errors other than not-found and timeout pass through wrapped.
func StageError(tool string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", tool, ErrToolMissing, err)
	case errors.Is(err, process.ErrTimedOut):
		return fmt.Errorf("%s: %w: %w", tool, ErrToolTimeout, err)
	default:
		return fmt.Errorf("%s: %w", tool, err)
	}
}
