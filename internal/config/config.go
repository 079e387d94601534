// Package config loads the per-project enforcer configuration from
// <root>/.enforcer/config.json, overlays ENFORCER_* environment variables,
// and discovers per-tool sidecar configs next to it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/telemetry"
)

// GlobalScope is the disabled_rules key applying to every language.
const GlobalScope = "global"

// File is the content of .enforcer/config.json.
type File struct {
	// DisabledRules maps a language, or "global", to rule ids.
	DisabledRules map[string][]string `koanf:"disabled_rules" json:"disabled_rules"`

	// SeverityOverrides maps a rule id to error, warning or info.
	SeverityOverrides map[string]string `koanf:"severity_overrides" json:"severity_overrides,omitempty"`

	// DebugModeEnabled collects progress logs for every run.
	DebugModeEnabled bool `koanf:"debug_mode_enabled" json:"debug_mode_enabled"`

	Pipeline  PipelineConfig   `koanf:"pipeline" json:"pipeline"`
	Report    ReportConfig     `koanf:"report" json:"report"`
	Logging   LoggingConfig    `koanf:"logging" json:"logging"`
	Redaction RedactionConfig  `koanf:"redaction" json:"redaction"`
	Watch     WatchConfig      `koanf:"watch" json:"watch"`
	Telemetry telemetry.Config `koanf:"telemetry" json:"telemetry"`
}

// PipelineConfig tunes tool execution.
type PipelineConfig struct {
	// CommandTimeout bounds every external tool invocation.
	CommandTimeout Duration `koanf:"command_timeout" json:"command_timeout"`

	// OverallTimeout bounds a whole check.
	OverallTimeout Duration `koanf:"overall_timeout" json:"overall_timeout"`

	// GracePeriod between SIGTERM and SIGKILL on timeout. Zero kills at once.
	GracePeriod Duration `koanf:"grace_period" json:"grace_period"`

	// Parallelism is the number of languages checked concurrently.
	Parallelism int `koanf:"parallelism" json:"parallelism"`

	// Serialize allows only one external tool process at a time.
	Serialize bool `koanf:"serialize" json:"serialize"`

	// ContinueOnLintError runs compile and tests despite lint errors.
	ContinueOnLintError bool `koanf:"continue_on_lint_error" json:"continue_on_lint_error"`

	SkipTests bool `koanf:"skip_tests" json:"skip_tests"`

	PythonInterpreter string `koanf:"python_interpreter" json:"python_interpreter,omitempty"`

	// Ignore adds gitignore-style patterns on top of .gitignore.
	Ignore []string `koanf:"ignore" json:"ignore,omitempty"`
}

// ReportConfig tunes the text report.
type ReportConfig struct {
	WarningLimit int  `koanf:"warning_limit" json:"warning_limit"`
	FileLimit    int  `koanf:"file_limit" json:"file_limit"`
	Plain        bool `koanf:"plain" json:"plain"`
}

// LoggingConfig selects the diagnostic log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// RedactionConfig controls secret scrubbing of tool output.
type RedactionConfig struct {
	Disabled   bool     `koanf:"disabled" json:"disabled"`
	Allowlists []string `koanf:"allowlists" json:"allowlists,omitempty"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	// Debounce is the quiet period after the last change before a run.
	Debounce Duration `koanf:"debounce" json:"debounce"`

	// MinInterval is the minimum time between two runs.
	MinInterval Duration `koanf:"min_interval" json:"min_interval"`
}

// Config is the loaded configuration of one run root.
type Config struct {
	File

	// Root is the absolute run root.
	Root string `json:"-"`

	// Path is the config.json that was read, or would be.
	Path string `json:"-"`

	// ToolConfigs maps a tool name to its sidecar file path.
	ToolConfigs map[string]string `json:"-"`
}

// Default returns a File with every default applied.
func Default() File {
	f := File{}
	applyDefaults(&f)
	return f
}

func applyDefaults(f *File) {
	if f.DisabledRules == nil {
		f.DisabledRules = map[string][]string{}
	}
	if f.SeverityOverrides == nil {
		f.SeverityOverrides = map[string]string{}
	}

	if f.Pipeline.CommandTimeout == 0 {
		f.Pipeline.CommandTimeout = Duration(60 * time.Second)
	}
	if f.Pipeline.OverallTimeout == 0 {
		f.Pipeline.OverallTimeout = Duration(10 * time.Minute)
	}
	if f.Pipeline.Parallelism == 0 {
		f.Pipeline.Parallelism = 1
	}

	if f.Report.WarningLimit == 0 {
		f.Report.WarningLimit = 10
	}
	if f.Report.FileLimit == 0 {
		f.Report.FileLimit = 10
	}

	if f.Logging.Level == "" {
		f.Logging.Level = "warn"
	}
	if f.Logging.Format == "" {
		f.Logging.Format = "console"
	}

	if f.Watch.Debounce == 0 {
		f.Watch.Debounce = Duration(500 * time.Millisecond)
	}
	if f.Watch.MinInterval == 0 {
		f.Watch.MinInterval = Duration(5 * time.Second)
	}

	// Telemetry is off unless configured; fill the rest of its defaults.
	def := telemetry.NewDefaultConfig()
	t := &f.Telemetry
	if t.Endpoint == "" {
		t.Endpoint = def.Endpoint
	}
	if t.Protocol == "" {
		t.Protocol = def.Protocol
	}
	if t.ServiceName == "" {
		t.ServiceName = def.ServiceName
	}
	if t.ServiceVersion == "" {
		t.ServiceVersion = def.ServiceVersion
	}
	if t.SampleRate == 0 {
		t.SampleRate = def.SampleRate
	}
	if t.MetricInterval == 0 {
		t.MetricInterval = def.MetricInterval
	}
	if t.ShutdownAfter == 0 {
		t.ShutdownAfter = def.ShutdownAfter
	}
}

// Validate checks the configuration for errors.
func (f *File) Validate() error {
	var errs []error
	for rule, sev := range f.SeverityOverrides {
		if _, err := issue.ParseSeverity(sev); err != nil {
			errs = append(errs, fmt.Errorf("severity_overrides[%s]: %w", rule, err))
		}
	}
	for scope, rules := range f.DisabledRules {
		if strings.TrimSpace(scope) == "" {
			errs = append(errs, fmt.Errorf("disabled_rules: empty language key"))
		}
		for _, r := range rules {
			if strings.TrimSpace(r) == "" {
				errs = append(errs, fmt.Errorf("disabled_rules[%s]: empty rule id", scope))
			}
		}
	}
	if f.Pipeline.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("pipeline.parallelism must not be negative"))
	}
	if f.Report.WarningLimit < 0 || f.Report.FileLimit < 0 {
		errs = append(errs, fmt.Errorf("report limits must not be negative"))
	}
	switch strings.ToLower(f.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", f.Logging.Format))
	}
	if err := f.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}

// Overrides returns the severity overrides as typed values. Validate has
// rejected unknown names, so they are skipped here.
func (f *File) Overrides() map[string]issue.Severity {
	out := make(map[string]issue.Severity, len(f.SeverityOverrides))
	for rule, sev := range f.SeverityOverrides {
		if s, err := issue.ParseSeverity(sev); err == nil {
			out[rule] = s
		}
	}
	return out
}
