package kotlin

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
)

var (
	// src/main/kotlin/App.kt:3:1: Unexpected blank line(s) before "}" (standard:no-blank-line-before-rbrace)
	ktlintLine = regexp.MustCompile(`^(.+?\.kts?):(\d+):(\d+):?\s+(.+?)(?:\s+\(([\w:-]+)\))?$`)
	// src/main/kotlin/App.kt:10:5 - MagicNumber - This expression contains a magic number.
	detektLine = regexp.MustCompile(`^(.+?\.kts?):(\d+):(\d+)\s+-\s+(.+?)\s+-\s+(.+)$`)
	// e: file:///repo/src/App.kt:10:5 Unresolved reference: foo
	// e: /repo/src/App.kt: (10, 5): Unresolved reference: foo
	kotlincLine = regexp.MustCompile(`^([ew]): (?:file://)?(.+?\.kts?)(?::(\d+):\d+|: \((\d+), \d+\):?)\s+(.+)$`)

	taskMissing = regexp.MustCompile(`Task '([\w:-]+)' not found`)
)

func gradleLines(raw string, fn plugin.LineFunc) []issue.Issue {
	// Gradle interleaves task banners and build summaries; only lines the
	// tool-specific pattern recognises are diagnostics.
	issues, _ := plugin.ParseLines(raw, fn)
	return issues
}

// parseKtlint maps ktlintCheck output. ktlint has no severity levels; every
// finding is a warning.
func parseKtlint(raw string) []issue.Issue {
	return gradleLines(raw, func(line string) (issue.Issue, bool) {
		m := ktlintLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			return issue.Issue{}, false
		}
		return issue.Issue{
			Tool:     "ktlint",
			File:     m[1],
			Line:     plugin.Atoi(m[2]),
			Message:  strings.TrimSpace(m[4]),
			Rule:     m[5],
			Severity: issue.SeverityWarning,
		}, true
	})
}

// parseDetekt maps detekt's plain console report.
func parseDetekt(raw string) []issue.Issue {
	return gradleLines(raw, func(line string) (issue.Issue, bool) {
		m := detektLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			return issue.Issue{}, false
		}
		return issue.Issue{
			Tool:     "detekt",
			File:     m[1],
			Line:     plugin.Atoi(m[2]),
			Message:  strings.TrimSpace(m[5]),
			Rule:     strings.TrimSpace(m[4]),
			Severity: issue.SeverityWarning,
		}, true
	})
}

// parseKotlinc maps compiler diagnostics printed during assemble.
func parseKotlinc(raw string) []issue.Issue {
	return gradleLines(raw, func(line string) (issue.Issue, bool) {
		m := kotlincLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			return issue.Issue{}, false
		}
		sev := issue.SeverityError
		if m[1] == "w" {
			sev = issue.SeverityWarning
		}
		ln := m[3]
		if ln == "" {
			ln = m[4]
		}
		return issue.Issue{
			Tool:     "kotlinc",
			File:     m[2],
			Line:     plugin.Atoi(ln),
			Message:  strings.TrimSpace(m[5]),
			Severity: sev,
		}, true
	})
}

// missingTask reports the task name when the build has no such task, i.e.
// the ktlint or detekt Gradle plugin is not applied.
func missingTask(output string) (string, bool) {
	m := taskMissing.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}
