package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/enforcer/pkg/enforcer"
)

const (
	toolCheckCode = "check_code"

	// maxTimeoutSeconds caps timeout_seconds.
	maxTimeoutSeconds = 3600
)

var errInvalidArgument = errors.New("invalid argument")

type checkCodeInput struct {
	Targets               []string `json:"targets,omitempty" jsonschema:"Files or directories to check, relative to root. Defaults to the whole root."`
	CheckGitModifiedFiles bool     `json:"check_git_modified_files,omitempty" jsonschema:"Check the files git reports as modified instead of targets"`
	Verbose               bool     `json:"verbose,omitempty" jsonschema:"List every issue instead of a per-file summary"`
	TimeoutSeconds        int      `json:"timeout_seconds,omitempty" jsonschema:"Overall time budget in seconds. Defaults to the project configuration."`
	Debug                 bool     `json:"debug,omitempty" jsonschema:"Attach collected progress logs when the check times out"`
	Root                  string   `json:"root,omitempty" jsonschema:"Project root holding .enforcer/config.json. Defaults to the server working directory."`
	Structured            bool     `json:"structured,omitempty" jsonschema:"Return the structured JSON result instead of the text report"`
}

type checkCodeOutput struct {
	RunID              string `json:"run_id" jsonschema:"Identifier of this run in the side logs"`
	Errors             int    `json:"errors" jsonschema:"Number of errors"`
	Warnings           int    `json:"warnings" jsonschema:"Number of warnings"`
	FormattedFileCount int    `json:"formatted_file_count" jsonschema:"Files rewritten by auto-formatters"`
	TimedOut           bool   `json:"timed_out" jsonschema:"True if the overall time budget ran out"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: toolCheckCode,
		Description: "Run formatters, linters, compilers and tests over files, directories, or the files git reports as modified. " +
			"Returns the same report the command line prints.",
	}, s.handleCheckCode)
}

func (s *Server) handleCheckCode(ctx context.Context, req *mcp.CallToolRequest, args checkCodeInput) (*mcp.CallToolResult, checkCodeOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolCheckCode)
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, toolCheckCode)
		s.metrics.RecordInvocation(ctx, toolCheckCode, time.Since(start), toolErr)
	}()

	opts, err := s.checkOptions(args)
	if err != nil {
		toolErr = err
		return nil, checkCodeOutput{}, err
	}

	res, err := s.check(ctx, opts)
	if errors.Is(err, enforcer.ErrNoModifiedFiles) {
		return textResult("No modified files found in git status to check."), checkCodeOutput{}, nil
	}
	if err != nil {
		toolErr = err
		s.logger.Error(ctx, "check_code failed", zap.Error(err))
		return nil, checkCodeOutput{}, fmt.Errorf("check failed: %w", err)
	}

	out := checkCodeOutput{
		RunID:              res.RunID,
		Errors:             len(res.Errors),
		Warnings:           len(res.Warnings),
		FormattedFileCount: res.FormattedFileCount,
		TimedOut:           res.TimedOut,
	}

	text := res.Report
	if args.Structured {
		raw, err := res.JSON()
		if err != nil {
			toolErr = err
			return nil, checkCodeOutput{}, err
		}
		text = string(raw)
	}
	if res.TimedOut && args.Debug && len(res.Logs) > 0 {
		text += "\n\nDebug logs captured before the timeout:\n" + strings.Join(res.Logs, "\n")
	}
	return textResult(text), out, nil
}

func (s *Server) checkOptions(args checkCodeInput) (enforcer.Options, error) {
	root := args.Root
	if root == "" {
		root = s.root
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return enforcer.Options{}, fmt.Errorf("%w: root %q is not a directory", errInvalidArgument, root)
	}
	if args.TimeoutSeconds < 0 || args.TimeoutSeconds > maxTimeoutSeconds {
		return enforcer.Options{}, fmt.Errorf("%w: timeout_seconds must be between 0 and %d", errInvalidArgument, maxTimeoutSeconds)
	}
	for _, t := range args.Targets {
		if strings.TrimSpace(t) == "" {
			return enforcer.Options{}, fmt.Errorf("%w: empty target", errInvalidArgument)
		}
	}

	return enforcer.Options{
		Root:         filepath.Clean(root),
		Targets:      args.Targets,
		ModifiedOnly: args.CheckGitModifiedFiles,
		Verbose:      args.Verbose,
		Plain:        true,
		Timeout:      time.Duration(args.TimeoutSeconds) * time.Second,
		CollectLogs:  args.Debug,
		Logger:       s.logger,
		Telemetry:    s.telemetry,
	}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
