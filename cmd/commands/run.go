package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	api "checkin-runner/internal/clients_api/checkin"
	"checkin-runner/internal/clients_api/pushplus"
	"checkin-runner/internal/config"
	"checkin-runner/internal/features/checkin"
	"checkin-runner/internal/infra/ci"
	storage "checkin-runner/internal/infra/fs"
	"checkin-runner/internal/infra/log"
	"checkin-runner/internal/notify"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrBatchFailed is returned when at least one account did not check in.
var ErrBatchFailed = errors.New("check-in batch failed")

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the check-in batch (default)",
		Long:  `Log in and check in every configured account concurrently, then publish the report.`,
		RunE:  runCheckin,
	}
}

func runCheckin(cmd *cobra.Command, args []string) error {
	output := ci.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), os.Getenv)

	cfg, err := loadConfig(cmd)
	if err != nil {
		output.WriteReport("Check-in aborted: configuration error", err.Error(), true)
		return err
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(runContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := api.NewClient(api.Options{
		BaseURL:   cfg.Checkin.URL(),
		Timeout:   cfg.App.Timeout(),
		RateLimit: cfg.App.RateLimit,
	})
	if err != nil {
		output.WriteReport("Check-in aborted: configuration error", err.Error(), true)
		return fmt.Errorf("failed to create check-in client: %w", err)
	}
	relay := pushplus.NewClient(cfg.PushPlus.Endpoint, cfg.App.Timeout(), cfg.PushPlus.MaxRetries)

	runner := checkin.NewRunner(cfg, checkin.Deps{
		Orchestrator: checkin.NewOrchestrator(client, relay),
		Relays:       notify.FromConfig(cfg, relay),
		Output:       output,
		Store:        storage.NewRunStore(cfg.App.DataDir),
	})

	report := runner.Run(ctx)
	if report.Failed() {
		return ErrBatchFailed
	}
	return nil
}

// loadConfig reads configuration and starts logging as configured.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		log.LogError("Failed to load config", zap.Error(err))
		return nil, err
	}
	if err := log.Init(cfg.App.LogDir, cfg.App.Debug); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed to initialize logging: %v\n", err)
	}
	log.LogInfo("Configuration loaded",
		zap.String("base_url", cfg.Checkin.URL()),
		zap.Int("pushplus_tokens", len(cfg.PushPlus.Tokens)),
		zap.Bool("telegram", cfg.Telegram.BotToken != ""))
	return cfg, nil
}

// runContext falls back to Background when the command was not started through Execute.
func runContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
