package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// Dir is the per-project configuration directory under the run root.
	Dir = ".enforcer"

	// FileName is the main configuration file inside Dir.
	FileName = "config.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ENFORCER_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// ErrTooLarge is returned when config.json exceeds the size limit.
var ErrTooLarge = errors.New("config file too large")

// defaultContent is written when a project has no config.json yet.
var defaultContent = map[string]interface{}{
	"disabled_rules":     map[string]interface{}{},
	"debug_mode_enabled": false,
}

// sections are the nested config keys reachable from the environment.
var sections = []string{"pipeline", "report", "logging", "telemetry", "redaction", "watch"}

// Path returns the config.json path for root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load reads <root>/.enforcer/config.json, creating the directory and a
// default file when missing, then overlays ENFORCER_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (ENFORCER_PIPELINE_COMMAND_TIMEOUT, ENFORCER_DEBUG_MODE_ENABLED, ...)
//  2. .enforcer/config.json
//  3. Hardcoded defaults
//
// Every other *.json file in .enforcer/ is a tool sidecar config: its base
// name is the tool name and its path is handed to that tool.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	dir := filepath.Join(absRoot, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName)
	content, err := readOrCreate(path)
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), kjson.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var f File
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&f)
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	tools, err := sidecars(dir)
	if err != nil {
		return nil, err
	}
	return &Config{File: f, Root: absRoot, Path: path, ToolConfigs: tools}, nil
}

// envKey maps ENFORCER_PIPELINE_COMMAND_TIMEOUT to pipeline.command_timeout
// and ENFORCER_DEBUG_MODE_ENABLED to debug_mode_enabled.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok && rest != "" {
			return section + "." + rest
		}
	}
	return key
}

func readOrCreate(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		content, err := indent(defaultContent)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write default config %s: %w", path, err)
		}
		return content, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, path, info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func sidecars(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	tools := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == FileName || filepath.Ext(name) != ".json" {
			continue
		}
		tools[strings.TrimSuffix(name, ".json")] = filepath.Join(dir, name)
	}
	return tools, nil
}

// Save persists the rule lists and the debug flag of f into
// <root>/.enforcer/config.json. Other keys already in the file are kept
// and environment overrides are never written back.
func Save(root string, f File) error {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	k := koanf.New(".")
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), kjson.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("failed to read config file: %w", err)
	}

	disabled := make(map[string]interface{}, len(f.DisabledRules))
	for scope, rules := range f.DisabledRules {
		disabled[scope] = dedupe(rules)
	}
	overrides := make(map[string]interface{}, len(f.SeverityOverrides))
	for rule, sev := range f.SeverityOverrides {
		overrides[rule] = sev
	}
	k.Delete("disabled_rules")
	k.Delete("severity_overrides")
	if err := k.Set("disabled_rules", disabled); err != nil {
		return err
	}
	if len(overrides) > 0 {
		if err := k.Set("severity_overrides", overrides); err != nil {
			return err
		}
	}
	if err := k.Set("debug_mode_enabled", f.DebugModeEnabled); err != nil {
		return err
	}

	out, err := indent(k.Raw())
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func indent(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func dedupe(rules []string) []string {
	seen := make(map[string]struct{}, len(rules))
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
