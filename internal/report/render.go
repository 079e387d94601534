package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
)

// Level selects the prefix of a status line.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

var prefixes = map[Level]string{
	LevelInfo:    "* ",
	LevelSuccess: "✓ ",
	LevelWarning: "! ",
	LevelError:   "✗ ",
}

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
)

// Default limits of the condensed output.
const (
	DefaultWarningLimit = 10
	DefaultFileLimit    = 10

	// topFilesThreshold is the number of files with errors above which
	// the summary lists the worst three.
	topFilesThreshold = 10
)

// Renderer turns a RunResult into the human-readable report.
type Renderer struct {
	// Verbose lists every issue instead of grouping by file.
	Verbose bool

	// WarningLimit caps the warnings listed in verbose mode.
	WarningLimit int

	// FileLimit caps the files listed in the grouped warning summary.
	FileLimit int

	// Plain disables terminal styling.
	Plain bool
}

// NewRenderer returns a Renderer with the default limits.
func NewRenderer(verbose, plain bool) Renderer {
	return Renderer{
		Verbose:      verbose,
		WarningLimit: DefaultWarningLimit,
		FileLimit:    DefaultFileLimit,
		Plain:        plain,
	}
}

// Render produces the full text report.
func (r Renderer) Render(res RunResult) string {
	var b strings.Builder
	r.separator(&b, "Enforcer")

	if len(res.Notices) > 0 {
		r.status(&b, LevelWarning, strings.Join(res.Notices, "\n"))
	}
	if len(res.Languages) == 0 {
		if len(res.Notices) == 0 {
			r.status(&b, LevelWarning, "No files to check.")
		}
		return b.String()
	}

	for _, lr := range res.Languages {
		r.language(&b, lr)
	}
	r.summary(&b, res)
	return b.String()
}

func (r Renderer) language(b *strings.Builder, lr pipeline.LanguageResult) {
	r.separator(b, "Language: "+lr.Language)

	if lr.State == pipeline.StateSkippedMissingTools {
		for _, msg := range lr.Messages {
			level := LevelWarning
			if strings.HasPrefix(msg, "Missing required tool") {
				level = LevelError
			}
			r.status(b, level, msg)
		}
		return
	}

	r.status(b, LevelInfo, "Running auto-fixers...")
	if lr.Formatted > 0 {
		r.status(b, LevelInfo, fmt.Sprintf("Formatted %d files.", lr.Formatted))
	} else {
		r.status(b, LevelInfo, "No style changes needed.")
	}
	r.status(b, LevelInfo, "Running linters and static analysis...")
	r.results(b, lr.Errors, lr.Warnings, lr.Language)

	for _, msg := range lr.Messages {
		r.status(b, LevelWarning, msg)
	}
	switch {
	case lr.State == pipeline.StateStoppedAtLint && len(lr.Errors) > 0:
		r.status(b, LevelWarning, "Compile and tests skipped until lint errors are fixed.")
	case lr.State == pipeline.StateStoppedAtCompile && len(lr.Messages) == 0:
		r.status(b, LevelWarning, "Tests skipped until compile errors are fixed.")
	}
}

func (r Renderer) results(b *strings.Builder, errs, warns []issue.Issue, lang string) {
	if len(errs) == 0 && len(warns) == 0 {
		r.status(b, LevelSuccess, fmt.Sprintf("No issues found in %s code", lang))
		return
	}
	if len(errs) > 0 {
		r.status(b, LevelError, fmt.Sprintf("Found %d error(s) in %s code:", len(errs), lang))
		if r.Verbose {
			r.list(b, errs, 0)
		} else {
			r.grouped(b, errs, 0)
		}
	}
	if len(warns) > 0 {
		r.status(b, LevelWarning, fmt.Sprintf("Found %d warning(s) in %s code:", len(warns), lang))
		if r.Verbose {
			r.list(b, warns, r.WarningLimit)
		} else {
			r.grouped(b, warns, r.FileLimit)
		}
	}
}

// list prints one line per issue. limit <= 0 means unlimited.
func (r Renderer) list(b *strings.Builder, issues []issue.Issue, limit int) {
	for n, i := range issues {
		if limit > 0 && n >= limit {
			r.status(b, LevelInfo, fmt.Sprintf("  ... and %d more warnings. See %s for details.", len(issues)-limit, LastCheckLog))
			return
		}
		rule := ""
		if i.Rule != "" {
			rule = " (" + i.Rule + ")"
		}
		fmt.Fprintf(b, "  %-40s %-10s %s%s\n", i.Location(), "["+i.Tool+"]", i.Message, rule)
	}
}

// grouped prints per-file rule counts. limit <= 0 means unlimited.
func (r Renderer) grouped(b *strings.Builder, issues []issue.Issue, limit int) {
	byFile := make(map[string]map[string]int)
	for _, i := range issues {
		file := i.File
		if file == "" {
			file = "unknown_file"
		}
		if byFile[file] == nil {
			byFile[file] = make(map[string]int)
		}
		byFile[file][fmt.Sprintf("[%s][%s]", orNA(i.Tool), orNA(i.Rule))]++
	}

	files := sortedKeys(byFile)
	for n, file := range files {
		if limit > 0 && n >= limit {
			r.status(b, LevelInfo, fmt.Sprintf("  ... and issues in %d more files. Use -v for full details.", len(files)-limit))
			return
		}
		rules := byFile[file]
		total := 0
		for _, c := range rules {
			total += c
		}
		fmt.Fprintf(b, "  - %s (%d issues):\n", file, total)
		for _, rule := range sortedKeys(rules) {
			fmt.Fprintf(b, "    - %s (x%d)\n", rule, rules[rule])
		}
	}
}

func (r Renderer) summary(b *strings.Builder, res RunResult) {
	r.separator(b, "Summary")

	if res.TimedOut {
		r.status(b, LevelError, "The check did not finish before the overall timeout; results are partial.")
	}
	if len(res.Errors) == 0 && len(res.Warnings) == 0 {
		r.status(b, LevelSuccess, "All checks passed successfully!")
	} else {
		if len(res.Errors) > 0 {
			r.status(b, LevelError, fmt.Sprintf("Found a total of %d error(s) across all files.", len(res.Errors)))
		}
		if len(res.Warnings) > 0 {
			r.status(b, LevelWarning, fmt.Sprintf("Found a total of %d warning(s) across all files.", len(res.Warnings)))
		}
		r.topFiles(b, res.Errors)
	}

	fmt.Fprintf(b, "\n%s\n", r.styled(LevelInfo, "For a detailed machine-readable report, see "+LastCheckLog))
	fmt.Fprintf(b, "%s\n", r.styled(LevelInfo, "You can use tools like `grep` to analyze the log file."))
}

func (r Renderer) topFiles(b *strings.Builder, errs []issue.Issue) {
	counts := make(map[string]int)
	for _, e := range errs {
		file := e.File
		if file == "" {
			file = "unknown"
		}
		counts[file]++
	}
	if len(counts) <= topFilesThreshold {
		return
	}
	files := sortedKeys(counts)
	sort.SliceStable(files, func(i, j int) bool { return counts[files[i]] > counts[files[j]] })

	b.WriteString("\n  Top 3 files with most errors:\n")
	for _, f := range files[:3] {
		fmt.Fprintf(b, "    - %s (%d errors)\n", f, counts[f])
	}
}

func (r Renderer) status(b *strings.Builder, level Level, msg string) {
	b.WriteString(r.styled(level, msg))
	b.WriteByte('\n')
}

func (r Renderer) styled(level Level, msg string) string {
	prefix := prefixes[level]
	if r.Plain {
		return prefix + msg
	}
	var style lipgloss.Style
	switch level {
	case LevelSuccess:
		style = successStyle
	case LevelWarning:
		style = warningStyle
	case LevelError:
		style = errorStyle
	default:
		style = infoStyle
	}
	return style.Render(prefix) + msg
}

func (r Renderer) separator(b *strings.Builder, title string) {
	bar := strings.Repeat("═", 20)
	line := fmt.Sprintf("%s %s %s", bar, strings.ToUpper(title), bar)
	if !r.Plain {
		line = titleStyle.Render(line)
	}
	b.WriteString("\n" + line + "\n")
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
