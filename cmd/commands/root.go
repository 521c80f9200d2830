package commands

// Root command. Running it without a subcommand performs the check-in batch,
// which is what CI schedules call.

import (
	"checkin-runner/internal/config"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "checkin-runner",
		Short: "Log in and check in every configured account, then report",
		Long: `checkin-runner logs into the check-in service for each account in ACCOUNTS,
performs the daily check-in concurrently and publishes one report line per account
to stdout/stderr, the GitHub Actions outputs and the configured notification relays.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runCheckin,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd())
	root.AddCommand(newNotifyCmd())
	root.AddCommand(newStatusCmd())
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}
