// Package logging provides structured logging for enforcer runs.
//
// Logger wraps zap with:
//   - a Trace level (-2, below Debug) for per-line tool output
//   - stderr and OpenTelemetry outputs (stdout carries reports and the MCP
//     stdio transport, so logs never go there)
//   - run correlation fields taken from the context (run.id, language,
//     trace_id)
//   - field redaction, with a pluggable scrubber for free-text values
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithLanguage(ctx, "python")
//	logger.Info(ctx, "stage finished", zap.String("stage", "lint"))
//
// Tests use NewTestLogger and its Assert helpers.
package logging
