package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/process"
)

// Executor is the part of process.Harness plugins depend on.
type Executor interface {
	Execute(ctx context.Context, c process.Command) (*process.Result, error)
}

// Redactor scrubs secrets from raw tool output before it is stored in an
// Issue message.
type Redactor interface {
	Redact(content string) string
}

type nopRedactor struct{}

func (nopRedactor) Redact(s string) string { return s }

// Toolchain is the shared runtime handed to every builtin plugin.
type Toolchain struct {
	Exec     Executor
	Timeout  time.Duration
	Redactor Redactor
}

// NewToolchain returns a Toolchain. A nil redactor leaves output untouched.
func NewToolchain(exec Executor, timeout time.Duration, redactor Redactor) *Toolchain {
	if redactor == nil {
		redactor = nopRedactor{}
	}
	return &Toolchain{Exec: exec, Timeout: timeout, Redactor: redactor}
}

// Run executes args in root. args[0] may be a "./wrapper" command.
func (t *Toolchain) Run(ctx context.Context, root string, sink process.Sink, args ...string) (*process.Result, error) {
	if len(args) == 0 {
		return nil, process.ErrEmptyCommand
	}
	argv := make([]string, len(args))
	copy(argv, args)
	argv[0] = ResolveCommand(root, argv[0])
	return t.Exec.Execute(ctx, process.Command{
		Args:    argv,
		Dir:     root,
		Timeout: t.Timeout,
		Sink:    sink,
	})
}

// FailureIssue turns a failed run into an Issue whose message carries the
// redacted raw output.
func (t *Toolchain) FailureIssue(tool string, res *process.Result) issue.Issue {
	out := strings.TrimSpace(res.Combined())
	if out == "" {
		out = fmt.Sprintf("%s exited with code %d", tool, res.ExitCode)
	}
	return issue.Issue{
		Tool:     tool,
		Message:  t.Redactor.Redact(out),
		Rule:     issue.RuleToolFailure,
		Severity: issue.SeverityError,
	}
}

// LineFunc maps one output line to an Issue. ok is false when the line is
// not a diagnostic.
type LineFunc func(line string) (iss issue.Issue, ok bool)

// ParseLines applies fn to every non-blank line of raw, preserving tool
// order. Lines fn rejects are returned separately.
func ParseLines(raw string, fn LineFunc) (issues []issue.Issue, unparsed []string) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if iss, ok := fn(line); ok {
			issues = append(issues, iss)
			continue
		}
		unparsed = append(unparsed, line)
	}
	return issues, unparsed
}

// DropNoise removes lines matching any of the patterns.
func DropNoise(lines []string, noise ...*regexp.Regexp) []string {
	out := lines[:0:0]
	for _, l := range lines {
		skip := false
		for _, re := range noise {
			if re.MatchString(l) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, l)
		}
	}
	return out
}

// UnparsedIssue summarizes lines a parser could not map into a single
// synthetic warning so they are neither lost nor merged into wrong fields.
func UnparsedIssue(tool string, lines []string) (issue.Issue, bool) {
	if len(lines) == 0 {
		return issue.Issue{}, false
	}
	msg := fmt.Sprintf("%d line(s) of %s output could not be parsed; first: %q", len(lines), tool, lines[0])
	return issue.ParseFailure(tool, issue.SeverityWarning, issue.RuleUnparsedOutput, msg), true
}

// DecodeFailureIssue is the synthetic error for structured output that
// failed to decode.
func DecodeFailureIssue(tool string, err error) issue.Issue {
	return issue.ParseFailure(tool, issue.SeverityError, issue.RuleParseError,
		fmt.Sprintf("failed to parse %s output: %v", tool, err))
}

// Atoi parses a decimal line or column number, returning 0 on failure.
func Atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
