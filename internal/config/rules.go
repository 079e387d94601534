package config

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
)

// RuleRef names a rule, optionally scoped to one language.
type RuleRef struct {
	Language string
	Rule     string
}

// ParseRuleRef parses "lang:rule" or a bare rule id, which is global.
// Only the first colon separates the language.
func ParseRuleRef(s string) (RuleRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RuleRef{}, fmt.Errorf("empty rule reference")
	}
	lang, rule, ok := strings.Cut(s, ":")
	if !ok {
		return RuleRef{Language: GlobalScope, Rule: s}, nil
	}
	lang, rule = strings.TrimSpace(lang), strings.TrimSpace(rule)
	if lang == "" || rule == "" {
		return RuleRef{}, fmt.Errorf("invalid rule reference %q (want lang:rule or rule)", s)
	}
	return RuleRef{Language: lang, Rule: rule}, nil
}

// ParseRuleList parses a comma separated list of rule references.
func ParseRuleList(s string) ([]RuleRef, error) {
	var refs []RuleRef
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ref, err := ParseRuleRef(part)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Disable adds refs to the disabled rules of f.
func (f *File) Disable(refs ...RuleRef) {
	if f.DisabledRules == nil {
		f.DisabledRules = map[string][]string{}
	}
	for _, ref := range refs {
		if contains(f.DisabledRules[ref.Language], ref.Rule) {
			continue
		}
		f.DisabledRules[ref.Language] = append(f.DisabledRules[ref.Language], ref.Rule)
	}
}

// SetSeverity overrides the final severity of each rule.
func (f *File) SetSeverity(sev issue.Severity, rules ...string) error {
	if !sev.Valid() {
		return fmt.Errorf("unknown severity %q", sev)
	}
	if f.SeverityOverrides == nil {
		f.SeverityOverrides = map[string]string{}
	}
	for _, r := range rules {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		f.SeverityOverrides[r] = string(sev)
	}
	return nil
}

// WithIgnored returns a copy of f whose disabled rules also hold refs.
// Used for per-run ignores that must not be persisted.
func (f File) WithIgnored(refs ...RuleRef) File {
	disabled := make(map[string][]string, len(f.DisabledRules))
	for scope, rules := range f.DisabledRules {
		disabled[scope] = append([]string(nil), rules...)
	}
	f.DisabledRules = disabled
	f.Disable(refs...)
	return f
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
