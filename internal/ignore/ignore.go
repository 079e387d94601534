// Package ignore decides which paths a run skips, using gitignore
// semantics from go-git.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// AlwaysIgnored are skipped in every run.
var AlwaysIgnored = []string{".git/", ".enforcer/"}

// DefaultIgnoreFiles are read from the project root.
var DefaultIgnoreFiles = []string{".gitignore", ".enforcerignore"}

// DefaultFallbackPatterns apply when the project has no ignore file at all.
var DefaultFallbackPatterns = []string{
	"node_modules/",
	"__pycache__/",
	".venv/",
	"venv/",
	"bin/",
	"obj/",
	"build/",
	"dist/",
	".gradle/",
}

// Parser reads gitignore-style files.
type Parser struct {
	// IgnoreFiles is the list of ignore file names to look for. A
	// ".gitignore" entry also picks up nested .gitignore files.
	IgnoreFiles []string

	// FallbackPatterns are used when no ignore files are found.
	FallbackPatterns []string

	// Extra patterns are appended last and therefore take precedence.
	Extra []string
}

// NewParser creates a new ignore file parser with the given configuration.
func NewParser(ignoreFiles, fallbackPatterns []string) *Parser {
	return &Parser{
		IgnoreFiles:      ignoreFiles,
		FallbackPatterns: fallbackPatterns,
	}
}

// Load reads the project's ignore files and returns a Matcher rooted at
// projectRoot.
func (p *Parser) Load(projectRoot string) (*Matcher, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	patterns := parsePatterns(AlwaysIgnored)
	foundAny := false

	for _, name := range p.IgnoreFiles {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			foundAny = true
		}
		if name == ".gitignore" {
			// ReadPatterns walks nested .gitignore files, each scoped to
			// its own directory.
			ps, err := gitignore.ReadPatterns(osfs.New(root), nil)
			if err != nil {
				return nil, err
			}
			if len(ps) > 0 {
				foundAny = true
			}
			patterns = append(patterns, ps...)
			continue
		}
		lines, err := readLines(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, parsePatterns(lines)...)
	}

	if !foundAny {
		patterns = append(patterns, parsePatterns(p.FallbackPatterns)...)
	}
	patterns = append(patterns, parsePatterns(p.Extra)...)

	return &Matcher{root: root, m: gitignore.NewMatcher(patterns)}, nil
}

// readLines returns the pattern lines of a gitignore-style file.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := parseLine(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// parseLine returns "" for comments and blank lines.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

func parsePatterns(lines []string) []gitignore.Pattern {
	out := make([]gitignore.Pattern, 0, len(lines))
	for _, l := range lines {
		if l = parseLine(l); l != "" {
			out = append(out, gitignore.ParsePattern(l, nil))
		}
	}
	return out
}

// Matcher answers ignore queries for paths under one root.
type Matcher struct {
	root string
	m    gitignore.Matcher
}

// Root returns the absolute directory the matcher is anchored at.
func (m *Matcher) Root() string { return m.root }

// Match reports whether path is ignored. path may be absolute or relative
// to the root; paths outside the root are never ignored. A nil Matcher
// ignores nothing.
func (m *Matcher) Match(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	rel := path
	if filepath.IsAbs(path) {
		var err error
		if rel, err = filepath.Rel(m.root, path); err != nil {
			return false
		}
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	return m.m.Match(strings.Split(rel, "/"), isDir)
}
