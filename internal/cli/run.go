package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"keepersecurity.com/iam-sync/config"
	"keepersecurity.com/iam-sync/metrics"
	"keepersecurity.com/iam-sync/reconcile"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	DryRun          bool
	MetricsTextfile string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var opts = &RunOptions{}

	var cmd = &cobra.Command{
		Use:   "run",
		Short: "Run one IAM -> Rucio reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var cfg *config.Config
			if cfg, err = config.Load(rootOpts.ConfigFile); err != nil {
				return
			}
			if opts.DryRun {
				cfg.Sync.DryRun = true
			}
			if rootOpts.Verbose {
				cfg.Sync.Verbose = true
			}
			if len(opts.MetricsTextfile) > 0 {
				cfg.Metrics.Textfile = opts.MetricsTextfile
			}
			var logger = NewLogger(cmd.ErrOrStderr(), cfg.Sync.Verbose)

			var stat *reconcile.SyncStat
			stat, err = RunSync(cmd.Context(), cfg, logger)
			PrintStatistics(cmd.OutOrStdout(), stat)
			return
		},
	}

	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "record decisions without changing Rucio")
	cmd.Flags().StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")

	return cmd
}

// RunSync validates the configuration, builds the collaborators and runs one reconciliation.
func RunSync(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stat *reconcile.SyncStat, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err = cfg.Validate(); err != nil {
		return
	}
	var source reconcile.IIdentitySource
	if source, err = cfg.NewSource(ctx); err != nil {
		return
	}
	var sink reconcile.IAuditSink
	var closeSink func()
	if sink, closeSink, err = cfg.NewSink(ctx, logger); err != nil {
		return
	}
	defer closeSink()

	var collector = metrics.NewCollector()
	var sync = reconcile.NewSync(source, cfg.NewDirectory(), sink, cfg.Policy(),
		reconcile.WithDryRun(cfg.Sync.DryRun),
		reconcile.WithConcurrency(cfg.Sync.Concurrency),
		reconcile.WithLogger(logger),
		reconcile.WithObserver(collector))
	stat, err = sync.Run(ctx)

	if len(cfg.Metrics.Textfile) > 0 {
		if er1 := collector.WriteTextfile(cfg.Metrics.Textfile); er1 != nil {
			logger.Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "error", er1)
		}
	}
	return
}

func printSection(w io.Writer, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "%s:\n", title)
	for _, txt := range lines {
		_, _ = fmt.Fprintf(w, "\t%s\n", txt)
	}
}

func PrintStatistics(w io.Writer, syncStat *reconcile.SyncStat) {
	if syncStat == nil {
		return
	}
	if syncStat.DryRun {
		_, _ = fmt.Fprintln(w, "Dry run: Rucio was not modified")
	}
	printSection(w, "Success", syncStat.Succeeded)
	printSection(w, "Skipped", syncStat.Skipped)
	printSection(w, "Failure", syncStat.Failed)
	if syncStat.FlushFailures > 0 {
		_, _ = fmt.Fprintf(w, "Audit: %d of %d events were not written\n", syncStat.FlushFailures, syncStat.Events)
	}
}
