// Package redact removes secrets from raw tool output before it is stored
// in issue messages or written to the side logs.
//
// Detection uses the gitleaks default rule set. Project and user
// allowlists (gitleaks-style TOML) exclude known-safe values.
package redact

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// ProjectAllowlist is the gitleaks allowlist file read from the run root.
const ProjectAllowlist = ".gitleaks.toml"

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// Options configures a Redactor.
type Options struct {
	// Root is the run root; its .gitleaks.toml is honoured when present.
	Root string

	// ExtraAllowlists are further TOML files, e.g. .enforcer/allowlist.toml.
	ExtraAllowlists []string
}

// Redactor detects and masks secrets. It is safe for concurrent use.
type Redactor struct {
	cfg gitleaksconfig.Config

	// detectors reuses gitleaks detectors, whose keyword prefilter is
	// costly to build.
	detectors sync.Pool
}

// New parses the gitleaks rules once and applies the allowlists.
func New(opts Options) (*Redactor, error) {
	files := make([]string, 0, 1+len(opts.ExtraAllowlists))
	if opts.Root != "" {
		files = append(files, filepath.Join(opts.Root, ProjectAllowlist))
	}
	files = append(files, opts.ExtraAllowlists...)

	allow, err := LoadAllowlists(files...)
	if err != nil {
		return nil, fmt.Errorf("loading allowlists: %w", err)
	}

	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	cfg := d.Config
	applyAllowlist(&cfg, allow)
	r := &Redactor{cfg: cfg}
	r.detectors.New = func() any { return detect.NewDetector(r.cfg) }
	return r, nil
}

// Scan returns the secrets found in content.
func (r *Redactor) Scan(content string) []Finding {
	if r == nil || content == "" {
		return nil
	}
	d := r.detectors.Get().(*detect.Detector)
	raw := d.DetectString(content)
	// A detector that kept findings of its own would grow without bound.
	if len(d.Findings()) == 0 {
		r.detectors.Put(d)
	}
	out := make([]Finding, 0, len(raw))
	for _, f := range raw {
		if f.Secret == "" {
			continue
		}
		out = append(out, Finding{RuleID: f.RuleID, Line: f.StartLine, Secret: f.Secret})
	}
	return out
}

// Redact replaces every detected secret with [REDACTED:<rule>].
func (r *Redactor) Redact(content string) string {
	findings := r.Scan(content)
	if len(findings) == 0 {
		return content
	}
	// Longest first so a secret containing another is masked whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})
	for _, f := range findings {
		content = strings.ReplaceAll(content, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return content
}

func applyAllowlist(cfg *gitleaksconfig.Config, allow *Allowlist) {
	if allow == nil || (len(allow.Paths) == 0 && len(allow.Regexes) == 0) {
		return
	}
	global := &gitleaksconfig.Allowlist{Description: "enforcer project/user allowlist"}
	// Patterns were validated by LoadAllowlists.
	for _, p := range allow.Paths {
		global.Paths = append(global.Paths, gitleaksregexp.MustCompile(p))
	}
	for _, p := range allow.Regexes {
		global.Regexes = append(global.Regexes, gitleaksregexp.MustCompile(p))
	}
	global.StopWords = append(global.StopWords, allow.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
}
