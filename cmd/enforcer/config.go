package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/enforcer/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration a check would use: .enforcer/config.json with
ENFORCER_* environment overrides and defaults applied, plus the tool sidecar
configs found next to it.

Examples:
  enforcer config
  ENFORCER_PIPELINE_PARALLELISM=4 enforcer config`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

type effectiveConfig struct {
	Path        string            `json:"path"`
	ToolConfigs map[string]string `json:"tool_configs"`
	config.File
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	raw, err := json.MarshalIndent(effectiveConfig{
		Path:        cfg.Path,
		ToolConfigs: cfg.ToolConfigs,
		File:        cfg.File,
	}, "", "    ")
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}
