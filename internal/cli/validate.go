package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"keepersecurity.com/iam-sync/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file without contacting IAM or Rucio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var cfg *config.Config
			if cfg, err = config.Load(rootOpts.ConfigFile); err != nil {
				return
			}
			if err = cfg.Validate(); err != nil {
				return
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: configuration is valid\n", rootOpts.ConfigFile)
			return
		},
	}
	return cmd
}
