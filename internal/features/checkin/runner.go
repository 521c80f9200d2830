package checkin

import (
	"context"
	"fmt"
	"time"

	"checkin-runner/internal/config"
	"checkin-runner/internal/infra/fs"
	"checkin-runner/internal/infra/log"
	"checkin-runner/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Broadcaster sends the batch report to every relay and returns how many took it.
type Broadcaster interface {
	Send(ctx context.Context, title, content string) int
}

// ReportWriter publishes the rendered report (CI output, stdout/stderr).
type ReportWriter interface {
	WriteReport(title, body string, failed bool) error
}

// SnapshotStore keeps the last report on disk.
type SnapshotStore interface {
	Save(snapshot fs.RunSnapshot) (string, error)
}

type Runner struct {
	accountsRaw  string
	orchestrator *Orchestrator
	relays       Broadcaster
	output       ReportWriter
	store        SnapshotStore
	now          func() time.Time
}

type Deps struct {
	Orchestrator *Orchestrator
	Relays       Broadcaster   // optional
	Output       ReportWriter  // optional
	Store        SnapshotStore // optional
}

func NewRunner(cfg *config.Config, deps Deps) *Runner {
	return &Runner{
		accountsRaw:  cfg.Checkin.AccountsRaw,
		orchestrator: deps.Orchestrator,
		relays:       deps.Relays,
		output:       deps.Output,
		store:        deps.Store,
		now:          time.Now,
	}
}

// Run parses the accounts, checks all of them in concurrently and publishes
// the report. Callers exit non-zero when the returned report Failed().
func (r *Runner) Run(ctx context.Context) *Report {
	report := &Report{RunID: uuid.NewString(), StartedAt: r.now()}

	accounts, err := config.ParseAccounts(r.accountsRaw)
	if err != nil {
		log.LogError("Invalid account configuration", zap.String("run_id", report.RunID), zap.Error(err))
		report.ConfigErr = err
		report.Duration = r.now().Sub(report.StartedAt)
		r.publish(report)
		return report
	}

	log.LogInfo("Starting check-in batch", zap.String("run_id", report.RunID), zap.Int("accounts", len(accounts)))

	report.Outcomes = r.execute(ctx, accounts)
	report.Duration = r.now().Sub(report.StartedAt)

	if report.Failed() {
		log.LogError("Check-in batch finished with failures",
			zap.String("run_id", report.RunID), zap.Int("succeeded", report.Succeeded()), zap.Int("total", len(accounts)))
	} else {
		log.LogSuccess("Check-in batch finished",
			zap.String("run_id", report.RunID), zap.Int("total", len(accounts)))
	}

	if r.relays != nil {
		delivered := r.relays.Send(ctx, report.Title(), report.Markdown())
		log.LogInfo("Batch report relayed", zap.Int("delivered", delivered))
	}

	r.publish(report)
	return report
}

// execute starts one goroutine per account and waits for all of them.
// Tasks never return an error, so one failure cannot cancel the rest; each
// writes only its own slot.
func (r *Runner) execute(ctx context.Context, accounts []models.Account) []Outcome {
	outcomes := make([]Outcome, len(accounts))

	var g errgroup.Group
	for i, account := range accounts {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = failed(account.Name, fmt.Errorf("check-in panicked: %v", p))
				}
			}()
			outcomes[i] = r.orchestrator.Run(ctx, account)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *Runner) publish(report *Report) {
	if r.output != nil {
		if err := r.output.WriteReport(report.Title(), report.String(), report.Failed()); err != nil {
			log.LogError("Failed to write report", zap.Error(err))
		}
	}
	if r.store != nil {
		path, err := r.store.Save(report.Snapshot())
		if err != nil {
			log.LogWarn("Failed to save run snapshot", zap.Error(err))
			return
		}
		log.LogDebug("Run snapshot saved", zap.String("path", path))
	}
}
