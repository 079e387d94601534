// Package main implements the enforcer command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Exit codes. Issues found is a successful run.
const (
	exitOK       = 0
	exitFailure  = 1
	exitTimedOut = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var (
	rootDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "enforcer [paths...]",
	Short: "Run formatters, linters, compilers and tests across languages",
	Long: `enforcer classifies files by language and runs each language's
toolchain: auto-formatter, linter, compiler and test runner. Results are
printed as one report, and side logs are written to the project root.

Without a subcommand, enforcer runs "check".

Examples:
  # Check the whole project
  enforcer

  # Check a directory and a file, listing every issue
  enforcer -v src/ tools/build.py

  # Check only files git reports as modified
  enforcer --modified

  # Disable a rule permanently for Python
  enforcer --blacklist python:E501`,
	Version:       version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "project root holding .enforcer/config.json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "diagnostic log level (trace, debug, info, warn, error); overrides logging.level")
	addCheckFlags(rootCmd)
	rootCmd.SetVersionTemplate(fmt.Sprintf("enforcer %s (commit %s, built %s)\n", version, gitCommit, buildDate))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return exitFailure
}
