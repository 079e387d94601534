package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/enforcer/internal/plugin"
	"github.com/fyrsmithlabs/enforcer/internal/plugin/plugintest"
)

func TestRegistry_Order(t *testing.T) {
	reg, err := Registry(plugin.NewToolchain(&plugintest.Executor{}, time.Minute, nil), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "js_ts", "csharp", "kotlin"}, reg.Languages())
}

func TestRegistry_Classify(t *testing.T) {
	reg, err := Registry(plugin.NewToolchain(&plugintest.Executor{}, time.Minute, nil), Options{})
	require.NoError(t, err)

	tests := map[string]string{
		"a/b.py":           "python",
		"stubs/x.pyi":      "python",
		"web/App.TSX":      "js_ts",
		"lib/index.d.ts":   "js_ts",
		"tool.cjs":         "js_ts",
		"src/Program.cs":   "csharp",
		"build.gradle.kts": "kotlin",
		"src/Main.kt":      "kotlin",
	}
	for path, want := range tests {
		got, ok := reg.Classify(path)
		require.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}

	_, ok := reg.Classify("README.md")
	assert.False(t, ok)
}

func TestRegistry_PythonInterpreter(t *testing.T) {
	reg, err := Registry(plugin.NewToolchain(&plugintest.Executor{}, time.Minute, nil), Options{PythonInterpreter: "python3.12"})
	require.NoError(t, err)
	p, ok := reg.Get("python")
	require.True(t, ok)
	assert.Equal(t, []string{"python3.12"}, p.Descriptor().RequiredCommands)
}

func TestInstallHint(t *testing.T) {
	assert.Equal(t, "https://dotnet.microsoft.com/download", InstallHint("dotnet"))
	assert.Contains(t, InstallHint("./gradlew"), "Gradle wrapper")
	assert.Equal(t, "Search for installation instructions online.", InstallHint("cargo"))
}
