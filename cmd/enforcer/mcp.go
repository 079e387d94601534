package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/enforcer/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the check_code tool over MCP stdio",
	Long: `Run an MCP server on stdin/stdout exposing the check_code tool.

Diagnostic logs go to stderr; stdout carries the protocol.

Examples:
  # Register with an MCP client, for instance:
  #   {"command": "enforcer", "args": ["mcp", "--root", "/path/to/repo"]}
  enforcer mcp --root .`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, rootDir)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer rt.close(ctx)

	srv, err := mcp.NewServer(&mcp.Config{
		Name:      "enforcer",
		Version:   version,
		Root:      rt.cfg.Root,
		Logger:    rt.logger,
		Telemetry: rt.telemetry,
	})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return &exitError{code: exitFailure, err: err}
	}
	return nil
}
