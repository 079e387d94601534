package python

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
)

var (
	blackChanged = regexp.MustCompile(`(?m)^reformatted (.+)$`)
	isortChanged = regexp.MustCompile(`(?m)^Fixing (.+)$`)

	flake8Line = regexp.MustCompile(`^(.+?):(\d+):(\d+): ([A-Z]+\d+) (.+)$`)

	mypyLine    = regexp.MustCompile(`^(.+?):(\d+):(?:\d+:)? (error|warning|note): (.+)$`)
	mypyRule    = regexp.MustCompile(`\s*\[([a-z0-9-]+)\]$`)
	mypySummary = regexp.MustCompile(`^(Found \d+ errors?|Success: )`)
	mypyNote    = regexp.MustCompile(`:\d+:(?:\d+:)? note: `)

	compileLocation = regexp.MustCompile(`File "([^"]+)", line (\d+)`)

	missingModule = regexp.MustCompile(`No module named '?([\w.]+)'?`)
)

// changedFiles returns the distinct files black and isort report as rewritten.
func changedFiles(blackOut, isortOut string) map[string]struct{} {
	changed := make(map[string]struct{})
	for _, m := range blackChanged.FindAllStringSubmatch(blackOut, -1) {
		changed[strings.TrimSpace(m[1])] = struct{}{}
	}
	for _, m := range isortChanged.FindAllStringSubmatch(isortOut, -1) {
		changed[strings.TrimSpace(m[1])] = struct{}{}
	}
	return changed
}

type pyrightReport struct {
	GeneralDiagnostics []struct {
		File     string `json:"file"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
		Rule     string `json:"rule"`
		Range    struct {
			Start struct {
				Line int `json:"line"`
			} `json:"start"`
		} `json:"range"`
	} `json:"generalDiagnostics"`
}

// parsePyright decodes `pyright --outputjson`. Lines are zero-based there.
func parsePyright(raw string) []issue.Issue {
	var report pyrightReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		return []issue.Issue{plugin.DecodeFailureIssue("pyright", err)}
	}
	out := make([]issue.Issue, 0, len(report.GeneralDiagnostics))
	for _, d := range report.GeneralDiagnostics {
		sev := issue.SeverityInfo
		switch d.Severity {
		case "error":
			sev = issue.SeverityError
		case "warning":
			sev = issue.SeverityWarning
		}
		out = append(out, issue.Issue{
			Tool:     "pyright",
			File:     d.File,
			Line:     d.Range.Start.Line + 1,
			Message:  d.Message,
			Rule:     d.Rule,
			Severity: sev,
		})
	}
	return out
}

// parseFlake8 maps flake8's default format. E and F codes are errors,
// everything else (W, C, plugin codes) is a warning.
func parseFlake8(raw string) []issue.Issue {
	issues, unparsed := plugin.ParseLines(raw, func(line string) (issue.Issue, bool) {
		m := flake8Line.FindStringSubmatch(line)
		if m == nil {
			return issue.Issue{}, false
		}
		sev := issue.SeverityWarning
		if strings.HasPrefix(m[4], "E") || strings.HasPrefix(m[4], "F") {
			sev = issue.SeverityError
		}
		return issue.Issue{
			Tool:     "flake8",
			File:     m[1],
			Line:     plugin.Atoi(m[2]),
			Message:  strings.TrimSpace(m[5]),
			Rule:     m[4],
			Severity: sev,
		}, true
	})
	if syn, ok := plugin.UnparsedIssue("flake8", unparsed); ok {
		issues = append(issues, syn)
	}
	return issues
}

// parseMypy maps mypy's default format; a trailing "[code]" becomes the rule.
// Notes are context for the preceding error and are dropped.
func parseMypy(raw string) []issue.Issue {
	issues, unparsed := plugin.ParseLines(raw, func(line string) (issue.Issue, bool) {
		m := mypyLine.FindStringSubmatch(line)
		if m == nil || m[3] == "note" {
			return issue.Issue{}, false
		}
		msg := strings.TrimSpace(m[4])
		rule := ""
		if rm := mypyRule.FindStringSubmatch(msg); rm != nil {
			rule = rm[1]
			msg = strings.TrimSpace(strings.TrimSuffix(msg, rm[0]))
		}
		sev := issue.SeverityError
		if m[3] == "warning" {
			sev = issue.SeverityWarning
		}
		return issue.Issue{
			Tool:     "mypy",
			File:     m[1],
			Line:     plugin.Atoi(m[2]),
			Message:  msg,
			Rule:     rule,
			Severity: sev,
		}, true
	})
	unparsed = plugin.DropNoise(unparsed, mypySummary, mypyNote)
	if syn, ok := plugin.UnparsedIssue("mypy", unparsed); ok {
		issues = append(issues, syn)
	}
	return issues
}

// parseCompileError extracts the location and final message of a
// py_compile traceback.
func parseCompileError(file, stderr string) issue.Issue {
	iss := issue.Issue{
		Tool:     "py_compile",
		File:     file,
		Rule:     "syntax-error",
		Severity: issue.SeverityError,
	}
	if m := compileLocation.FindStringSubmatch(stderr); m != nil {
		iss.Line = plugin.Atoi(m[2])
	}
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	iss.Message = strings.TrimSpace(lines[len(lines)-1])
	if iss.Message == "" {
		iss.Message = "failed to compile"
	}
	return iss
}

// missingModules lists the modules output says could not be imported.
func missingModules(output string) []string {
	var mods []string
	for _, m := range missingModule.FindAllStringSubmatch(output, -1) {
		mods = append(mods, m[1])
	}
	return mods
}

// isModule reports whether name is mod or one of its submodules, such
// as the black.__main__ a broken install fails to find.
func isModule(name, mod string) bool {
	return name == mod || strings.HasPrefix(name, mod+".")
}
