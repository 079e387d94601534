package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
)

func warn(file, rule string) issue.Issue {
	return issue.Issue{Tool: "flake8", File: file, Line: 3, Message: "style", Rule: rule, Severity: issue.SeverityWarning}
}

func fail(file, rule string) issue.Issue {
	return issue.Issue{Tool: "mypy", File: file, Line: 7, Message: "type error", Rule: rule, Severity: issue.SeverityError}
}

func sampleResult() RunResult {
	a := NewAggregator("Path does not exist: missing.py")
	a.Add(pipeline.LanguageResult{
		Language:  "python",
		State:     pipeline.StateStoppedAtLint,
		Files:     3,
		Formatted: 2,
		Errors:    []issue.Issue{fail("a.py", "name-defined"), fail("a.py", "name-defined"), fail("b.py", "")},
		Warnings:  []issue.Issue{warn("a.py", "W291"), warn("c.py", "E501")},
		Infos:     []issue.Issue{{Tool: "pyright", Severity: issue.SeverityInfo}},
	})
	a.Add(pipeline.LanguageResult{
		Language: "kotlin",
		State:    pipeline.StateSkippedMissingTools,
		Files:    1,
		Messages: []string{"Missing required tool: ./gradlew for kotlin. Please install it.", "Skipping kotlin due to missing plugin or tools."},
	})
	return a.Result()
}

func TestAggregator(t *testing.T) {
	res := sampleResult()
	assert.Len(t, res.Errors, 3)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, 2, res.FormattedFileCount)
	assert.Equal(t, []string{"Path does not exist: missing.py"}, res.Notices)
	assert.Equal(t, []string{
		"Path does not exist: missing.py",
		"Missing required tool: ./gradlew for kotlin. Please install it.",
		"Skipping kotlin due to missing plugin or tools.",
	}, res.Messages)
	require.Len(t, res.Languages, 2)
	assert.Equal(t, "python", res.Languages[0].Language)
}

func TestAggregator_ResultIsACopy(t *testing.T) {
	a := NewAggregator()
	a.Add(pipeline.LanguageResult{Language: "x", Errors: []issue.Issue{fail("a", "r")}})
	res := a.Result()
	res.Errors[0].File = "changed"
	assert.Equal(t, "a", a.Result().Errors[0].File)
}

func TestFromPipeline(t *testing.T) {
	res := FromPipeline(&pipeline.Result{
		Messages:  []string{"No supported language for file: x.txt"},
		Languages: []pipeline.LanguageResult{{Language: "js_ts", Warnings: []issue.Issue{warn("a.js", "semi")}}},
	})
	assert.Equal(t, []string{"No supported language for file: x.txt"}, res.Notices)
	assert.Len(t, res.Warnings, 1)

	empty := FromPipeline(nil)
	assert.Empty(t, empty.Languages)
}

func TestRender_Grouped(t *testing.T) {
	out := NewRenderer(false, true).Render(sampleResult())

	assert.Contains(t, out, "════════════════════ ENFORCER ════════════════════")
	assert.Contains(t, out, "! Path does not exist: missing.py")
	assert.Contains(t, out, "LANGUAGE: PYTHON")
	assert.Contains(t, out, "* Formatted 2 files.")
	assert.Contains(t, out, "✗ Found 3 error(s) in python code:")
	assert.Contains(t, out, "  - a.py (2 issues):\n    - [mypy][name-defined] (x2)\n")
	assert.Contains(t, out, "  - b.py (1 issues):\n    - [mypy][n/a] (x1)\n")
	assert.Contains(t, out, "! Found 2 warning(s) in python code:")
	assert.Contains(t, out, "! Compile and tests skipped until lint errors are fixed.")
	assert.Contains(t, out, "✗ Missing required tool: ./gradlew for kotlin. Please install it.")
	assert.Contains(t, out, "! Skipping kotlin due to missing plugin or tools.")
	assert.Contains(t, out, "✗ Found a total of 3 error(s) across all files.")
	assert.Contains(t, out, "! Found a total of 2 warning(s) across all files.")
	assert.Contains(t, out, "For a detailed machine-readable report, see Enforcer_last_check.log")
	assert.NotContains(t, out, "Top 3 files")
}

func TestRender_Verbose(t *testing.T) {
	out := NewRenderer(true, true).Render(sampleResult())
	assert.Contains(t, out, fmt.Sprintf("  %-40s %-10s %s\n", "b.py:7", "[mypy]", "type error"))
	assert.Contains(t, out, fmt.Sprintf("  %-40s %-10s %s (W291)\n", "a.py:3", "[flake8]", "style"))
}

func TestRender_TotalsMatchAcrossModes(t *testing.T) {
	res := sampleResult()
	grouped := NewRenderer(false, true).Render(res)
	verbose := NewRenderer(true, true).Render(res)
	structured := ToStructured(res)

	for _, out := range []string{grouped, verbose} {
		assert.Contains(t, out, fmt.Sprintf("Found a total of %d error(s)", len(structured.Errors)))
		assert.Contains(t, out, fmt.Sprintf("Found a total of %d warning(s)", len(structured.Warnings)))
	}
}

func TestRender_WarningLimitInVerboseMode(t *testing.T) {
	var warnings []issue.Issue
	for n := 0; n < 13; n++ {
		warnings = append(warnings, warn(fmt.Sprintf("f%02d.py", n), "W1"))
	}
	a := NewAggregator()
	a.Add(pipeline.LanguageResult{Language: "python", State: pipeline.StateCompleted, Warnings: warnings})

	out := NewRenderer(true, true).Render(a.Result())
	assert.Contains(t, out, "* ... and 3 more warnings. See Enforcer_last_check.log for details.")
	assert.Contains(t, out, "f09.py:3")
	assert.NotContains(t, out, "f10.py:3")
	assert.Contains(t, out, "Found a total of 13 warning(s)")
}

func TestRender_FileLimitInGroupedMode(t *testing.T) {
	var warnings []issue.Issue
	for n := 0; n < 12; n++ {
		warnings = append(warnings, warn(fmt.Sprintf("f%02d.py", n), "W1"))
	}
	a := NewAggregator()
	a.Add(pipeline.LanguageResult{Language: "python", State: pipeline.StateCompleted, Warnings: warnings})

	out := NewRenderer(false, true).Render(a.Result())
	assert.Contains(t, out, "* ... and issues in 2 more files. Use -v for full details.")
	assert.NotContains(t, out, "f11.py")
}

func TestRender_TopFiles(t *testing.T) {
	var errs []issue.Issue
	for n := 0; n < 11; n++ {
		errs = append(errs, fail(fmt.Sprintf("f%02d.py", n), "E"))
	}
	errs = append(errs, fail("f05.py", "E"), fail("f05.py", "E"), fail("f07.py", "E"))
	a := NewAggregator()
	a.Add(pipeline.LanguageResult{Language: "python", State: pipeline.StateStoppedAtLint, Errors: errs})

	out := NewRenderer(false, true).Render(a.Result())
	assert.Contains(t, out, "  Top 3 files with most errors:\n    - f05.py (3 errors)\n    - f07.py (2 errors)\n    - f00.py (1 errors)\n")
}

func TestRender_NoIssues(t *testing.T) {
	a := NewAggregator()
	a.Add(pipeline.LanguageResult{Language: "js_ts", State: pipeline.StateCompleted})
	out := NewRenderer(false, true).Render(a.Result())
	assert.Contains(t, out, "✓ No issues found in js_ts code")
	assert.Contains(t, out, "* No style changes needed.")
	assert.Contains(t, out, "✓ All checks passed successfully!")
}

func TestRender_NothingToCheck(t *testing.T) {
	out := NewRenderer(false, true).Render(NewAggregator().Result())
	assert.Contains(t, out, "! No files to check.")
	assert.NotContains(t, out, "SUMMARY")

	out = NewRenderer(false, true).Render(NewAggregator("No supported files in directory: /x").Result())
	assert.Contains(t, out, "! No supported files in directory: /x")
	assert.NotContains(t, out, "No files to check.")
}

func TestRender_TimedOut(t *testing.T) {
	a := NewAggregator()
	a.Add(pipeline.LanguageResult{Language: "python", State: pipeline.StateCompleted})
	a.MarkTimedOut("Check timed out after 1m0s")
	res := a.Result()
	assert.True(t, res.TimedOut)

	out := NewRenderer(false, true).Render(res)
	assert.Contains(t, out, "! Check timed out after 1m0s")
	assert.Contains(t, out, "did not finish before the overall timeout")
}

func TestRender_StyledKeepsText(t *testing.T) {
	out := NewRenderer(false, false).Render(sampleResult())
	assert.Contains(t, out, "Found a total of 3 error(s) across all files.")
	assert.True(t, strings.Contains(out, "ENFORCER"))
}

func TestJSON(t *testing.T) {
	raw, err := JSON(NewAggregator().Result())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []any{}, decoded["errors"])
	assert.Equal(t, []any{}, decoded["warnings"])
	assert.Equal(t, []any{}, decoded["languages"])
	assert.Equal(t, false, decoded["timed_out"])
	assert.Contains(t, decoded, "formatted_file_count")

	s := ToStructured(sampleResult())
	require.Len(t, s.Languages, 2)
	assert.Equal(t, LanguageSummary{
		Language:  "python",
		State:     pipeline.StateStoppedAtLint,
		Files:     3,
		Formatted: 2,
		Errors:    3,
		Warnings:  2,
		Infos:     1,
		Messages:  []string{},
	}, s.Languages[0])
}
