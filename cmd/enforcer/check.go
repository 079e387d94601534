package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/enforcer/internal/config"
	"github.com/fyrsmithlabs/enforcer/internal/issue"
	"github.com/fyrsmithlabs/enforcer/internal/pipeline"
	"github.com/fyrsmithlabs/enforcer/pkg/enforcer"
)

type checkFlags struct {
	ignore       string
	blacklist    []string
	errorRules   []string
	warningRules []string
	infoRules    []string
	modified     bool
	verbose      bool
	jsonOut      bool
	plain        bool
	collectLogs  bool
	timeout      time.Duration
}

var checkOpts checkFlags

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Check files, directories or the files git reports as modified",
	Long: `Check the given paths, or the whole project root when none are given.

Rule references are either a bare rule id, which applies to every language,
or "language:rule" for one language.

Examples:
  # Ignore two rules for this run only
  enforcer check --ignore E501,js_ts:no-console src/

  # Promote a rule to error and persist it in .enforcer/config.json
  enforcer check --error F401

  # Structured output for scripts
  enforcer check --json`,
	Args: cobra.ArbitraryArgs,
	RunE: runCheck,
}

func init() {
	addCheckFlags(checkCmd)
	rootCmd.AddCommand(checkCmd)
}

func addCheckFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&checkOpts.ignore, "ignore", "", "comma separated rules to ignore for this run (rule or lang:rule)")
	f.StringSliceVar(&checkOpts.blacklist, "blacklist", nil, "rules to disable permanently in config.json (rule or lang:rule)")
	f.StringSliceVar(&checkOpts.errorRules, "error", nil, "rules to set to error severity in config.json")
	f.StringSliceVar(&checkOpts.warningRules, "warning", nil, "rules to set to warning severity in config.json")
	f.StringSliceVar(&checkOpts.infoRules, "info", nil, "rules to set to info severity in config.json")
	f.BoolVar(&checkOpts.modified, "modified", false, "check only files modified in git status")
	f.BoolVarP(&checkOpts.verbose, "verbose", "v", false, "list every issue instead of a per-file summary")
	f.BoolVar(&checkOpts.jsonOut, "json", false, "print the structured JSON result")
	f.BoolVar(&checkOpts.plain, "plain", false, "disable terminal styling")
	f.BoolVar(&checkOpts.collectLogs, "collect-logs", false, "collect tool progress lines and print them if the check times out")
	f.DurationVar(&checkOpts.timeout, "timeout", 0, "overall time budget (default pipeline.overall_timeout)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rt, err := newRuntime(ctx, rootDir)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer rt.close(ctx)

	updated, err := applyConfigFlags(&rt.cfg.File, checkOpts)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if updated {
		if err := config.Save(rt.cfg.Root, rt.cfg.File); err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		fmt.Fprintln(out, "Configuration updated.")
		if len(args) == 0 && !checkOpts.modified {
			return nil
		}
	}

	ignored, err := config.ParseRuleList(checkOpts.ignore)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	res, err := enforcer.Check(ctx, enforcer.Options{
		Root:         rt.cfg.Root,
		Targets:      args,
		ModifiedOnly: checkOpts.modified,
		Ignore:       ignored,
		Verbose:      checkOpts.verbose,
		Plain:        checkOpts.plain,
		Timeout:      checkOpts.timeout,
		CollectLogs:  checkOpts.collectLogs,
		Config:       rt.cfg,
		Logger:       rt.logger,
		Telemetry:    rt.telemetry,
		Progress:     progressLogger(rt),
	})
	if errors.Is(err, enforcer.ErrNoModifiedFiles) {
		fmt.Fprintln(out, "No modified files found in git status.")
		return nil
	}
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	if err := printResult(out, res, checkOpts.jsonOut); err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if res.TimedOut {
		if len(res.Logs) > 0 {
			fmt.Fprintln(os.Stderr, "Progress before the timeout:")
			fmt.Fprintln(os.Stderr, strings.Join(res.Logs, "\n"))
		}
		return &exitError{code: exitTimedOut}
	}
	return nil
}

// applyConfigFlags applies --blacklist, --error, --warning and --info to f
// and reports whether anything changed.
func applyConfigFlags(f *config.File, flags checkFlags) (bool, error) {
	updated := false
	for _, raw := range flags.blacklist {
		ref, err := config.ParseRuleRef(raw)
		if err != nil {
			return false, err
		}
		f.Disable(ref)
		updated = true
	}
	levels := []struct {
		sev   issue.Severity
		flag  string
		rules []string
	}{
		{issue.SeverityError, "--error", flags.errorRules},
		{issue.SeverityWarning, "--warning", flags.warningRules},
		{issue.SeverityInfo, "--info", flags.infoRules},
	}
	seen := make(map[string]string)
	for _, lvl := range levels {
		for _, rule := range lvl.rules {
			rule = strings.TrimSpace(rule)
			if prev, ok := seen[rule]; ok && prev != lvl.flag {
				return false, fmt.Errorf("rule %q given to both %s and %s", rule, prev, lvl.flag)
			}
			seen[rule] = lvl.flag
		}
	}
	for _, lvl := range levels {
		if len(lvl.rules) == 0 {
			continue
		}
		if err := f.SetSeverity(lvl.sev, lvl.rules...); err != nil {
			return false, err
		}
		updated = true
	}
	return updated, nil
}

func printResult(w io.Writer, res *enforcer.Result, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprint(w, res.Report)
		return err
	}
	raw, err := res.JSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func progressLogger(rt *runtime) pipeline.ProgressCallback {
	return func(p pipeline.Progress) {
		rt.logger.Underlying().Debug("progress",
			zap.String("language", p.Language),
			zap.String("stage", string(p.Stage)),
			zap.Bool("done", p.Done),
			zap.String("message", p.Message))
	}
}
