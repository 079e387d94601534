package csharp

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/plugin"
)

var (
	// C:\src\App\Program.cs(10,5): error CS0103: The name 'x' does not exist [C:\src\App\App.csproj]
	buildLine    = regexp.MustCompile(`^\s*(.+?)\((\d+),(\d+)\):\s+(warning|error)\s+([A-Z0-9]+):\s+(.+)$`)
	projectTrail = regexp.MustCompile(`\s+\[[^\]]+\.(?:cs|vb|fs)proj\]$`)
)

// parseBuild extracts compiler diagnostics from `dotnet build` output.
// MSBuild repeats every diagnostic in its closing summary, so duplicates
// of the same location, code and message are reported once.
func parseBuild(raw string) []issue.Issue {
	seen := make(map[issue.Issue]struct{})
	var out []issue.Issue
	for _, line := range strings.Split(raw, "\n") {
		m := buildLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		sev := issue.SeverityWarning
		if m[4] == "error" {
			sev = issue.SeverityError
		}
		iss := issue.Issue{
			Tool:     "dotnet-build",
			File:     strings.TrimSpace(m[1]),
			Line:     plugin.Atoi(m[2]),
			Message:  strings.TrimSpace(projectTrail.ReplaceAllString(m[6], "")),
			Rule:     m[5],
			Severity: sev,
		}
		if _, dup := seen[iss]; dup {
			continue
		}
		seen[iss] = struct{}{}
		out = append(out, iss)
	}
	return out
}
