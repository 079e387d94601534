// Package severity applies the run's disabled rules and severity
// overrides to tool-reported issues.
package severity

import (
	"sort"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
)

// GlobalScope is the disabled-rules key that applies to every language.
const GlobalScope = "global"

// Resolver is immutable once built and safe for concurrent use.
type Resolver struct {
	overrides map[string]issue.Severity
	disabled  map[string]map[string]struct{}
}

// New builds a Resolver. disabled maps a language (or GlobalScope) to rule
// ids; overrides maps a rule id to its final severity.
func New(disabled map[string][]string, overrides map[string]issue.Severity) *Resolver {
	r := &Resolver{
		overrides: make(map[string]issue.Severity, len(overrides)),
		disabled:  make(map[string]map[string]struct{}, len(disabled)),
	}
	for rule, sev := range overrides {
		r.overrides[rule] = sev
	}
	for scope, rules := range disabled {
		set := make(map[string]struct{}, len(rules))
		for _, rule := range rules {
			set[rule] = struct{}{}
		}
		r.disabled[scope] = set
	}
	return r
}

// Disabled reports whether rule is disabled for language.
func (r *Resolver) Disabled(language, rule string) bool {
	if rule == "" {
		return false
	}
	if _, ok := r.disabled[language][rule]; ok {
		return true
	}
	_, ok := r.disabled[GlobalScope][rule]
	return ok
}

// DisabledFor returns the sorted rule ids disabled for language, global
// ones included.
func (r *Resolver) DisabledFor(language string) []string {
	seen := make(map[string]struct{})
	for _, scope := range []string{language, GlobalScope} {
		for rule := range r.disabled[scope] {
			seen[rule] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for rule := range seen {
		out = append(out, rule)
	}
	sort.Strings(out)
	return out
}

// Filter drops issues whose rule is disabled for language.
func (r *Resolver) Filter(language string, issues []issue.Issue) []issue.Issue {
	out := make([]issue.Issue, 0, len(issues))
	for _, i := range issues {
		if !r.Disabled(language, i.Rule) {
			out = append(out, i)
		}
	}
	return out
}

// Resolve returns the final severity of i: an exact rule override wins,
// otherwise the tool's own severity stands.
func (r *Resolver) Resolve(i issue.Issue) issue.Severity {
	if i.Rule != "" {
		if sev, ok := r.overrides[i.Rule]; ok {
			return sev
		}
	}
	if !i.Severity.Valid() {
		return issue.SeverityWarning
	}
	return i.Severity
}

// Apply filters issues and stamps each survivor with its final severity.
func (r *Resolver) Apply(language string, issues []issue.Issue) []issue.Issue {
	out := r.Filter(language, issues)
	for n, i := range out {
		out[n] = i.WithSeverity(r.Resolve(i))
	}
	return out
}

// Partition splits issues by their current severity, preserving order.
func Partition(issues []issue.Issue) (errors, warnings, infos []issue.Issue) {
	for _, i := range issues {
		switch i.Severity {
		case issue.SeverityError:
			errors = append(errors, i)
		case issue.SeverityInfo:
			infos = append(infos, i)
		default:
			warnings = append(warnings, i)
		}
	}
	return errors, warnings, infos
}

// HasErrors reports whether any issue carries error severity.
func HasErrors(issues []issue.Issue) bool {
	for _, i := range issues {
		if i.Severity == issue.SeverityError {
			return true
		}
	}
	return false
}
