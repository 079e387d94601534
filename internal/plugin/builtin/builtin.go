// Package builtin assembles the registry of the plugins shipped with
// enforcer.
package builtin

import (
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/plugin/csharp"
	"github.com/fyrsmithlabs/enforcer/internal/plugin/jsts"
	"github.com/fyrsmithlabs/enforcer/internal/plugin/kotlin"
	"github.com/fyrsmithlabs/enforcer/internal/plugin/python"
)

// Options tunes the builtin plugins.
type Options struct {
	// PythonInterpreter overrides python.DefaultInterpreter.
	PythonInterpreter string
}

// Registry returns python, js_ts, csharp and kotlin, in that order.
func Registry(tc *plugin.Toolchain, opts Options) (*plugin.Registry, error) {
	return plugin.NewRegistry(
		python.New(tc, python.WithInterpreter(opts.PythonInterpreter)),
		jsts.New(tc),
		csharp.New(tc),
		kotlin.New(tc),
	)
}

var installHints = map[string]string{
	"python":  "https://www.python.org/downloads/",
	"python3": "https://www.python.org/downloads/",
	"npx":     "https://nodejs.org/",
	"node":    "https://nodejs.org/",
	"dotnet":  "https://dotnet.microsoft.com/download",
	"gradlew": "Ensure Gradle wrapper is present and executable in the repository root.",
}

// InstallHint suggests how to obtain a missing required command.
func InstallHint(cmd string) string {
	name := strings.TrimSuffix(filepath.Base(cmd), ".exe")
	if hint, ok := installHints[name]; ok {
		return hint
	}
	return "Search for installation instructions online."
}
