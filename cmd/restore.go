package cmd

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/clumio-code/bulk-restore/internal/dispatch"
	"github.com/clumio-code/bulk-restore/internal/engine"
	resterrors "github.com/clumio-code/bulk-restore/internal/errors"
	"github.com/clumio-code/bulk-restore/internal/exitcode"
	"github.com/clumio-code/bulk-restore/internal/plan"
	"github.com/clumio-code/bulk-restore/internal/progress"
	"github.com/clumio-code/bulk-restore/internal/report"
	"github.com/clumio-code/bulk-restore/internal/tui"
)

var (
	restoreInputPath  string
	restoreOutputPath string
	restoreMaxJobs    int
	restoreFromReport string
	restoreOnlyAssets []string
	restoreNoProgress bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Discover matching backups and restore them into the declared targets",
	Long: `Run the full restore flow: discover backups for every restore set in
the definition, resolve each one against its target spec, dispatch the
restores with bounded concurrency, and track every task to completion.

Each discovered backup produces exactly one outcome in the report, whether
it succeeded, failed validation, or exhausted status polling. Restore sets
run independently; one set failing never stops the others.

With --from-report, the non-succeeded jobs of a previous report are
dispatched directly from the requests the report recorded; discovery does
not run again.

Examples:
  # Restore everything the definition matches
  bulk-restore restore --input plan.yaml --output report.json

  # Rerun only the failures of a previous run, without re-discovering
  bulk-restore restore --from-report report.json

  # Limit in-flight restores
  bulk-restore restore --input plan.yaml --max-concurrent 2`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringVarP(&restoreInputPath, "input", "i", "", "Restore definition document (JSON or YAML)")
	restoreCmd.Flags().StringVarP(&restoreOutputPath, "output", "o", "", "Report destination (default stdout)")
	restoreCmd.Flags().IntVar(&restoreMaxJobs, "max-concurrent", 0, "Max in-flight restores per set (default from config)")
	restoreCmd.Flags().StringVar(&restoreFromReport, "from-report", "", "Previous report; its non-succeeded jobs are dispatched without discovery")
	restoreCmd.Flags().StringSliceVar(&restoreOnlyAssets, "only", nil, "Restrict dispatch to the listed assets (type/resource-id)")
	restoreCmd.Flags().BoolVar(&restoreNoProgress, "no-progress", false, "Disable the progress bar")
}

func runRestore(cmd *cobra.Command, args []string) error {
	applyPersistentFlags(cmd)
	ctx := cmd.Context()

	if restoreInputPath == "" && restoreFromReport == "" {
		return resterrors.NewValidationError(resterrors.ErrCodeInvalidInput,
			"either --input or --from-report is required")
	}

	var def *plan.Definition
	if restoreInputPath != "" {
		var err error
		def, err = loadDefinition(restoreInputPath)
		if err != nil {
			return err
		}
	}

	client, err := newProviderClient(ctx, def)
	if err != nil {
		return err
	}

	opts := engine.Options{
		MaxConcurrentRestores: cfg.MaxConcurrentRestores,
		Poll: dispatch.PollConfig{
			Interval:    cfg.PollInterval,
			MaxInterval: cfg.PollMaxInterval,
			MaxAttempts: cfg.PollMaxAttempts,
			Timeout:     cfg.PollTimeout,
		},
	}
	if restoreMaxJobs > 0 {
		opts.MaxConcurrentRestores = restoreMaxJobs
	}
	if len(restoreOnlyAssets) > 0 {
		opts.OnlyAssets = make(map[string]bool, len(restoreOnlyAssets))
		for _, key := range restoreOnlyAssets {
			opts.OnlyAssets[key] = true
		}
	}

	var bar progress.Indicator = progress.NewNullIndicator()
	if !restoreNoProgress && !cfg.Debug {
		// Total job count is only known after discovery, so the bar is
		// created lazily on the first dispatcher callback.
		var mu sync.Mutex
		var pb *progress.Bar
		opts.ProgressCallback = func(p *dispatch.Progress) {
			mu.Lock()
			defer mu.Unlock()
			if pb == nil {
				pb = progress.NewBar(int(atomic.LoadInt32(&p.TotalJobs)), "restoring")
				bar = pb
			}
			pb.Set(int(atomic.LoadInt32(&p.CompletedJobs)))
		}
	}

	eng := engine.New(client, log, opts)

	var rep *report.Report
	var runErr error
	if restoreFromReport != "" {
		prev, err := report.Load(restoreFromReport)
		if err != nil {
			return err
		}
		log.Info("replaying failed jobs from previous report", "report", restoreFromReport)
		rep, runErr = eng.RunFromReport(ctx, prev)
		if runErr == nil && rep.Total == 0 {
			fmt.Println(tui.SuccessStyle.Render("[OK] previous report has no failed jobs, nothing to rerun"))
			return nil
		}
	} else {
		rep, runErr = eng.Run(ctx, def)
	}
	bar.Finish()

	if rep != nil {
		if restoreOutputPath != "" {
			if err := rep.Write(restoreOutputPath); err != nil {
				return err
			}
			log.Info("report written", "path", restoreOutputPath)
		}
		fmt.Println(tui.RenderSummary(rep))
	}
	if runErr != nil {
		return runErr
	}
	if rep != nil && rep.HasFailures() {
		// Partial or failed runs exit non-zero so schedulers notice.
		os.Exit(exitcode.RestoresFailed)
	}
	return nil
}
