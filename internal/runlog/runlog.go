// Package runlog writes the two side logs kept at the run root:
// Enforcer_last_check.log holds one JSON record per issue of the latest run
// and is truncated every run; Enforcer_stats.log accumulates per-rule
// counts across runs.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
)

const (
	LastCheckFile = "Enforcer_last_check.log"
	StatsFile     = "Enforcer_stats.log"
)

// Redactor scrubs secrets from issue messages before they hit disk.
type Redactor interface {
	Redact(content string) string
}

// Writer writes the side logs for runs rooted at one directory.
type Writer struct {
	root     string
	now      func() time.Time
	redactor Redactor
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithRedactor scrubs messages in the per-issue log.
func WithRedactor(r Redactor) Option {
	return func(w *Writer) { w.redactor = r }
}

// New creates a Writer for root.
func New(root string, opts ...Option) *Writer {
	w := &Writer{root: root, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LastCheckPath is the absolute path of the per-issue log.
func (w *Writer) LastCheckPath() string { return filepath.Join(w.root, LastCheckFile) }

// StatsPath is the absolute path of the stats log.
func (w *Writer) StatsPath() string { return filepath.Join(w.root, StatsFile) }

// Write records one run. Both files are attempted even if the first fails.
func (w *Writer) Write(runID string, languages []pipeline.LanguageResult) error {
	started := w.now()
	errLast := w.writeLastCheck(runID, started, languages)
	errStats := w.appendStats(started, languages)
	if errLast != nil {
		return errLast
	}
	return errStats
}

// Reset empties the per-issue log for a run that produced no results,
// so it never shows records of an earlier run.
func (w *Writer) Reset() error {
	if err := os.WriteFile(w.LastCheckPath(), nil, 0o644); err != nil {
		return fmt.Errorf("truncating %s: %w", LastCheckFile, err)
	}
	return nil
}

func (w *Writer) writeLastCheck(runID string, ts time.Time, languages []pipeline.LanguageResult) error {
	f, err := os.OpenFile(w.LastCheckPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", LastCheckFile, err)
	}

	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.DebugLevel)

	for _, lr := range languages {
		for _, i := range recorded(lr) {
			msg := i.Message
			if w.redactor != nil {
				msg = w.redactor.Redact(msg)
			}
			entry := zapcore.Entry{Level: zapcore.DebugLevel, Time: ts}
			if err := core.Write(entry, []zap.Field{
				zap.String("run_id", runID),
				zap.String("language", lr.Language),
				zap.String("tool", i.Tool),
				zap.String("file", i.File),
				zap.Int("line", i.Line),
				zap.String("message", msg),
				zap.String("rule", i.Rule),
				zap.String("severity", string(i.Severity)),
			}); err != nil {
				f.Close()
				return fmt.Errorf("writing %s: %w", LastCheckFile, err)
			}
		}
	}
	if err := core.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", LastCheckFile, err)
	}
	return f.Close()
}

func (w *Writer) appendStats(ts time.Time, languages []pipeline.LanguageResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- Check started at %s ---\n", ts.Format("2006-01-02T15:04:05.000000"))
	for _, lr := range languages {
		for _, line := range StatsLines(lr.Language, recorded(lr)) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	f, err := os.OpenFile(w.StatsPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", StatsFile, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", StatsFile, err)
	}
	return f.Close()
}

// StatsLines buckets issues by "[tool] rule" and renders one sorted
// "<lang>: [tool] rule (xN)" line per bucket.
func StatsLines(lang string, issues []issue.Issue) []string {
	buckets := make(map[string]int)
	for _, i := range issues {
		tool, rule := i.Tool, i.Rule
		if tool == "" {
			tool = "unknown"
		}
		if rule == "" {
			rule = "generic"
		}
		buckets[fmt.Sprintf("[%s] %s", tool, rule)]++
	}
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s (x%d)", lang, k, buckets[k]))
	}
	return lines
}

// recorded is what the side logs keep for a language: errors then
// warnings.
func recorded(lr pipeline.LanguageResult) []issue.Issue {
	out := make([]issue.Issue, 0, len(lr.Errors)+len(lr.Warnings))
	out = append(out, lr.Errors...)
	return append(out, lr.Warnings...)
}
