// Package mcp exposes the check as an MCP tool over stdio.
//
// The server registers a single tool, check_code, backed by
// pkg/enforcer.Check. It returns the rendered text report, or the
// structured JSON result when asked, so an agent can run the same check a
// developer runs from the command line.
package mcp
