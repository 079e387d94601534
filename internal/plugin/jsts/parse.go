package jsts

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
)

var (
	tscLine    = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): (error|warning) (TS\d+): (.+)$`)
	tscSummary = regexp.MustCompile(`^Found \d+ errors?`)
	// tsc wraps long messages onto indented continuation lines.
	indented = regexp.MustCompile(`^\s`)

	npxMissing = regexp.MustCompile(`(?i)(could not determine executable to run|canceled due to missing packages|command not found)`)
)

// eslint severities.
const (
	eslintWarning = 1
	eslintError   = 2
)

type eslintFile struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   *string `json:"ruleId"`
		Severity int     `json:"severity"`
		Message  string  `json:"message"`
		Line     int     `json:"line"`
		Fatal    bool    `json:"fatal"`
	} `json:"messages"`
}

// parseESLint decodes `eslint --format json`.
func parseESLint(raw string) []issue.Issue {
	var files []eslintFile
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return []issue.Issue{plugin.DecodeFailureIssue("eslint", err)}
	}
	var out []issue.Issue
	for _, f := range files {
		for _, m := range f.Messages {
			sev := issue.SeverityWarning
			if m.Severity == eslintError || m.Fatal {
				sev = issue.SeverityError
			}
			rule := ""
			if m.RuleID != nil {
				rule = *m.RuleID
			}
			out = append(out, issue.Issue{
				Tool:     "eslint",
				File:     f.FilePath,
				Line:     m.Line,
				Message:  strings.TrimSpace(m.Message),
				Rule:     rule,
				Severity: sev,
			})
		}
	}
	return out
}

// parseTSC maps `tsc --pretty false` diagnostics. Continuation lines are
// appended to the message they belong to.
func parseTSC(raw string) []issue.Issue {
	var (
		issues   []issue.Issue
		unparsed []string
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if indented.MatchString(line) {
			if n := len(issues); n > 0 {
				issues[n-1].Message += " " + strings.TrimSpace(line)
				continue
			}
		}
		m := tscLine.FindStringSubmatch(line)
		if m == nil {
			unparsed = append(unparsed, line)
			continue
		}
		sev := issue.SeverityError
		if m[4] == "warning" {
			sev = issue.SeverityWarning
		}
		issues = append(issues, issue.Issue{
			Tool:     "tsc",
			File:     m[1],
			Line:     plugin.Atoi(m[2]),
			Message:  strings.TrimSpace(m[6]),
			Rule:     m[5],
			Severity: sev,
		})
	}
	unparsed = plugin.DropNoise(unparsed, tscSummary)
	if syn, ok := plugin.UnparsedIssue("tsc", unparsed); ok {
		issues = append(issues, syn)
	}
	return issues
}

// listedFiles counts the paths printed by `prettier --list-different`.
func listedFiles(raw string) int {
	n := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		n++
	}
	return n
}
