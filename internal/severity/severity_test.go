package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
)

func iss(tool, rule string, sev issue.Severity) issue.Issue {
	return issue.Issue{Tool: tool, File: "a", Line: 1, Message: "m", Rule: rule, Severity: sev}
}

func TestResolve_OverridePrecedence(t *testing.T) {
	r := New(nil, map[string]issue.Severity{
		"E501":       issue.SeverityInfo,
		"no-console": issue.SeverityError,
	})

	tests := []struct {
		name string
		in   issue.Issue
		want issue.Severity
	}{
		{"override demotes", iss("flake8", "E501", issue.SeverityError), issue.SeverityInfo},
		{"override promotes", iss("eslint", "no-console", issue.SeverityWarning), issue.SeverityError},
		{"no override keeps tool severity", iss("mypy", "arg-type", issue.SeverityError), issue.SeverityError},
		{"empty rule never overridden", iss("pytest", "", issue.SeverityError), issue.SeverityError},
		{"override is exact, not prefix", iss("flake8", "E5", issue.SeverityWarning), issue.SeverityWarning},
		{"unknown severity becomes warning", iss("x", "y", issue.Severity("fatal")), issue.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.in))
		})
	}
}

func TestFilter_PerLanguageAndGlobal(t *testing.T) {
	r := New(map[string][]string{
		"python":    {"E501"},
		GlobalScope: {"TODO"},
	}, nil)
	in := []issue.Issue{
		iss("flake8", "E501", issue.SeverityError),
		iss("flake8", "TODO", issue.SeverityWarning),
		iss("flake8", "W291", issue.SeverityWarning),
		iss("pytest", "", issue.SeverityError),
	}

	py := r.Filter("python", in)
	assert.Equal(t, []issue.Issue{in[2], in[3]}, py)

	// E501 is only disabled for python.
	js := r.Filter("js_ts", in)
	assert.Equal(t, []issue.Issue{in[0], in[2], in[3]}, js)

	assert.Equal(t, []string{"E501", "TODO"}, r.DisabledFor("python"))
	assert.Equal(t, []string{"TODO"}, r.DisabledFor("kotlin"))
}

func TestApplyAndPartition(t *testing.T) {
	r := New(map[string][]string{"python": {"F401"}}, map[string]issue.Severity{"W291": issue.SeverityInfo})
	in := []issue.Issue{
		iss("flake8", "F401", issue.SeverityError),
		iss("flake8", "E999", issue.SeverityError),
		iss("flake8", "W291", issue.SeverityWarning),
		iss("flake8", "C901", issue.SeverityWarning),
	}

	out := r.Apply("python", in)
	errs, warns, infos := Partition(out)
	assert.Len(t, errs, 1)
	assert.Len(t, warns, 1)
	assert.Len(t, infos, 1)
	assert.Equal(t, "W291", infos[0].Rule)
	assert.True(t, HasErrors(out))

	// Input is untouched.
	assert.Equal(t, issue.SeverityWarning, in[2].Severity)
}

func TestNew_CopiesInputs(t *testing.T) {
	overrides := map[string]issue.Severity{"R1": issue.SeverityError}
	r := New(nil, overrides)
	overrides["R1"] = issue.SeverityInfo

	assert.Equal(t, issue.SeverityError, r.Resolve(iss("t", "R1", issue.SeverityWarning)))
}
