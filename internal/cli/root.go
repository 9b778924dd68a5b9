package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	ConfigFile string
}

// NewRootCommand creates the root command of the iam-sync CLI.
func NewRootCommand() *cobra.Command {
	var opts = &RootOptions{}

	var cmd = &cobra.Command{
		Use:   "iam-sync",
		Short: "Synchronise IAM users into Rucio accounts",
		Long: `Reconciles the Rucio account directory against the IAM user population:
accounts, account attributes, RSE quotas and OIDC identities.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "iam-sync.yaml", "configuration file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// NewLogger returns a text logger, debug level when verbose.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	var level = slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
