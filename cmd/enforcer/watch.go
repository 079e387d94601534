package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/enforcer/internal/ignore"
	"github.com/fyrsmithlabs/enforcer/internal/watch"
	"github.com/fyrsmithlabs/enforcer/pkg/enforcer"
)

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Check the project, then re-check files as they change",
	Long: `Run a full check, then watch the project root and re-check the files
that changed. Bursts of changes are debounced (watch.debounce) and runs are
at least watch.min_interval apart.

Examples:
  enforcer watch
  enforcer watch -v src/`,
	Args: cobra.ArbitraryArgs,
	RunE: runWatch,
}

var (
	watchVerbose bool
	watchPlain   bool
)

func init() {
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "list every issue instead of a per-file summary")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "disable terminal styling")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := newRuntime(ctx, rootDir)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer rt.close(ctx)

	check := func(ctx context.Context, targets []string) error {
		res, err := enforcer.Check(ctx, enforcer.Options{
			Root:      rt.cfg.Root,
			Targets:   targets,
			Verbose:   watchVerbose,
			Plain:     watchPlain,
			Config:    rt.cfg,
			Logger:    rt.logger,
			Telemetry: rt.telemetry,
		})
		if err != nil {
			return err
		}
		return printResult(out, res, false)
	}

	if err := check(ctx, args); err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	parser := ignore.NewParser(ignore.DefaultIgnoreFiles, ignore.DefaultFallbackPatterns)
	parser.Extra = rt.cfg.Pipeline.Ignore
	matcher, err := parser.Load(rt.cfg.Root)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	w, err := watch.New(rt.cfg.Root, matcher, watch.Options{
		Debounce:    rt.cfg.Watch.Debounce.Duration(),
		MinInterval: rt.cfg.Watch.MinInterval.Duration(),
		Logger:      rt.logger,
	})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer w.Close()

	fmt.Fprintf(out, "Watching %s for changes. Press Ctrl+C to stop.\n", rt.cfg.Root)
	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		var existing []string
		for _, path := range changed {
			if _, err := os.Stat(path); err == nil {
				existing = append(existing, path)
			}
		}
		if len(existing) == 0 {
			return nil
		}
		rt.logger.Info(ctx, "re-checking changed files", zap.Int("files", len(existing)))
		return check(ctx, existing)
	})
}
