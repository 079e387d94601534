package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/enforcer/internal/issue"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, Dir), 0o755))
	require.NoError(t, os.WriteFile(Path(root), []byte(content), 0o644))
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)

	raw, err := os.ReadFile(Path(root))
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]interface{}{
		"disabled_rules":     map[string]interface{}{},
		"debug_mode_enabled": false,
	}, got)
	assert.Contains(t, string(raw), "\n    \"")

	assert.False(t, cfg.DebugModeEnabled)
	assert.Empty(t, cfg.DisabledRules)
	assert.Empty(t, cfg.ToolConfigs)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.CommandTimeout.Duration())
	assert.Equal(t, 1, cfg.Pipeline.Parallelism)
	assert.Equal(t, 10, cfg.Report.WarningLimit)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{
		"disabled_rules": {"global": ["E501"], "python": ["W503"]},
		"severity_overrides": {"no-unused-vars": "error", "@typescript-eslint/no-explicit-any": "info"},
		"debug_mode_enabled": true,
		"pipeline": {"command_timeout": "90s", "parallelism": 4, "continue_on_lint_error": true},
		"report": {"plain": true}
	}`)

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"E501"}, cfg.DisabledRules[GlobalScope])
	assert.Equal(t, []string{"W503"}, cfg.DisabledRules["python"])
	assert.True(t, cfg.DebugModeEnabled)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.CommandTimeout.Duration())
	assert.Equal(t, 4, cfg.Pipeline.Parallelism)
	assert.True(t, cfg.Pipeline.ContinueOnLintError)
	assert.True(t, cfg.Report.Plain)
	assert.Equal(t, map[string]issue.Severity{
		"no-unused-vars":                     issue.SeverityError,
		"@typescript-eslint/no-explicit-any": issue.SeverityInfo,
	}, cfg.Overrides())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"disabled_rules": {}, "pipeline": {"command_timeout": "90s"}}`)

	t.Setenv("ENFORCER_PIPELINE_COMMAND_TIMEOUT", "5s")
	t.Setenv("ENFORCER_DEBUG_MODE_ENABLED", "true")
	t.Setenv("ENFORCER_TELEMETRY_SERVICE_NAME", "enforcer-ci")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.CommandTimeout.Duration())
	assert.True(t, cfg.DebugModeEnabled)
	assert.Equal(t, "enforcer-ci", cfg.Telemetry.ServiceName)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ENFORCER_PIPELINE_COMMAND_TIMEOUT": "pipeline.command_timeout",
		"ENFORCER_REPORT_WARNING_LIMIT":     "report.warning_limit",
		"ENFORCER_TELEMETRY_ENABLED":        "telemetry.enabled",
		"ENFORCER_DEBUG_MODE_ENABLED":       "debug_mode_enabled",
		"ENFORCER_PIPELINE":                 "pipeline",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestLoad_Sidecars(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"disabled_rules": {}}`)
	dir := filepath.Join(root, Dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "black.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "eslint.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`x`), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"black":  filepath.Join(dir, "black.json"),
		"eslint": filepath.Join(dir, "eslint.json"),
	}, cfg.ToolConfigs)
}

func TestLoad_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{name: "malformed json", content: `{"disabled_rules": `, errText: "failed to load config file"},
		{name: "unknown severity", content: `{"severity_overrides": {"E1": "fatal"}}`, errText: "severity_overrides[E1]"},
		{name: "bad duration", content: `{"pipeline": {"command_timeout": "soon"}}`, errText: "failed to unmarshal"},
		{name: "bad log format", content: `{"logging": {"format": "xml"}}`, errText: "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConfig(t, root, tt.content)
			_, err := Load(root)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoad_TooLarge(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, maxConfigFileSize+1)
	for i := range big {
		big[i] = ' '
	}
	writeConfig(t, root, string(big))

	_, err := Load(root)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestSave_KeepsUnknownKeysAndSkipsEnv(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{"disabled_rules": {"python": ["E501"]}, "custom": {"keep": 1}}`)
	t.Setenv("ENFORCER_PIPELINE_PARALLELISM", "8")

	cfg, err := Load(root)
	require.NoError(t, err)
	cfg.Disable(RuleRef{Language: "python", Rule: "W503"}, RuleRef{Language: GlobalScope, Rule: "no-console"})
	require.NoError(t, cfg.SetSeverity(issue.SeverityWarning, "E302"))
	require.NoError(t, Save(root, cfg.File))

	raw, err := os.ReadFile(Path(root))
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, map[string]interface{}{"keep": float64(1)}, got["custom"])
	assert.Equal(t, map[string]interface{}{
		"python": []interface{}{"E501", "W503"},
		"global": []interface{}{"no-console"},
	}, got["disabled_rules"])
	assert.Equal(t, map[string]interface{}{"E302": "warning"}, got["severity_overrides"])
	assert.NotContains(t, got, "pipeline")

	reloaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, issue.SeverityWarning, reloaded.Overrides()["E302"])
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-1s")))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}
