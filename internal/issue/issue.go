// Package issue defines the normalized finding record shared by every
// plugin, the severity resolver and the reporters.
package issue

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Severity is the final or tool-assigned weight of an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ParseSeverity parses a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityError:
		return SeverityError, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityInfo:
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity %q (want error, warning or info)", s)
}

// Valid reports whether s is one of the three known severities.
func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning || s == SeverityInfo
}

// Issue is one finding reported by an external tool.
//
// File is relative to the run root once the pipeline has normalized it.
// Line 0 means the tool did not report a location.
type Issue struct {
	Tool     string   `json:"tool"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Message  string   `json:"message"`
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
}

// WithSeverity returns a copy of i carrying sev.
func (i Issue) WithSeverity(sev Severity) Issue {
	i.Severity = sev
	return i
}

// WithFile returns a copy of i pointing at file.
func (i Issue) WithFile(file string) Issue {
	i.File = file
	return i
}

// Location renders "file:line" the way the text reporter prints it.
func (i Issue) Location() string {
	file := i.File
	if file == "" {
		file = "unknown_file"
	}
	return fmt.Sprintf("%s:%d", file, i.Line)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (i Issue) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("tool", i.Tool)
	enc.AddString("file", i.File)
	enc.AddInt("line", i.Line)
	enc.AddString("rule", i.Rule)
	enc.AddString("severity", string(i.Severity))
	return nil
}

// Synthetic rule ids used when a tool's output could not be mapped.
const (
	RuleParseError     = "parse-error"
	RuleUnparsedOutput = "unparsed-output"
	RuleToolFailure    = "tool-failure"
	RuleToolMissing    = "tool-missing"
)

// ParseFailure builds the diagnostic Issue that stands in for output a
// parser could not understand.
func ParseFailure(tool string, sev Severity, rule, detail string) Issue {
	return Issue{
		Tool:     tool,
		File:     "",
		Line:     0,
		Message:  detail,
		Rule:     rule,
		Severity: sev,
	}
}
