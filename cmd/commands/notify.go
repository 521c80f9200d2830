package commands

import (
	"errors"
	"fmt"
	"time"

	"checkin-runner/internal/clients_api/pushplus"
	storage "checkin-runner/internal/infra/fs"
	"checkin-runner/internal/infra/log"
	"checkin-runner/internal/notify"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test message to every configured relay",
		Long:  `Send a test notification through all PushPlus tokens and the Telegram bot, to check relay configuration.`,
		RunE:  runNotify,
	}
	cmd.Flags().String("title", "checkin-runner test", "Notification title")
	cmd.Flags().String("message", "Relay configuration works.", "Notification body (markdown)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the report of the last run",
		Long:  `Print the last run snapshot saved under the data directory.`,
		RunE:  runStatus,
	}
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	title, _ := cmd.Flags().GetString("title")
	message, _ := cmd.Flags().GetString("message")

	relays := notify.FromConfig(cfg, pushplus.NewClient(cfg.PushPlus.Endpoint, cfg.App.Timeout(), cfg.PushPlus.MaxRetries))
	if relays.Len() == 0 {
		return errors.New("no notification relay configured: set PUSHPLUS_TOKEN or TELEGRAM_BOT_TOKEN")
	}

	delivered := relays.Send(runContext(cmd), title, message)
	fmt.Fprintf(cmd.OutOrStdout(), "delivered to %d/%d relays\n", delivered, relays.Len())
	if delivered < relays.Len() {
		return fmt.Errorf("%d relay(s) did not accept the message", relays.Len()-delivered)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	snapshot, err := storage.NewRunStore(cfg.App.DataDir).Load()
	if err != nil {
		log.LogWarn("No previous run found", zap.String("dir", cfg.App.DataDir), zap.Error(err))
		return err
	}

	state := "succeeded"
	if snapshot.Failed {
		state = "failed"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s at %s %s (%s)\n", snapshot.RunID,
		snapshot.StartedAt.Local().Format(time.DateTime), state, time.Duration(snapshot.DurationMs)*time.Millisecond)
	for _, line := range snapshot.Lines {
		fmt.Fprintln(out, line)
	}
	return nil
}
