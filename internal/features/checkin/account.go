package checkin

// Per-account pipeline: login, check in, and optionally tell the account
// owner through their own PushPlus token.

import (
	"context"
	"fmt"
	"time"

	"checkin-runner/internal/infra/log"
	"checkin-runner/internal/models"
	"checkin-runner/internal/notify"

	"go.uber.org/zap"
)

// Service is the check-in API as the orchestrator needs it.
type Service interface {
	Login(ctx context.Context, account models.Account) (*models.AuthenticatedAccount, error)
	Checkin(ctx context.Context, account *models.AuthenticatedAccount) (string, error)
}

// Outcome is the result for one account: either Result is set, or Err is.
type Outcome struct {
	Account      string
	Result       string
	PushPlusSent bool
	Err          error
}

func succeeded(account, result string, pushplus bool) Outcome {
	return Outcome{Account: account, Result: result, PushPlusSent: pushplus}
}

func failed(account string, err error) Outcome {
	return Outcome{Account: account, Err: err}
}

func (o Outcome) OK() bool { return o.Err == nil }

// Message is the result text on success and the error text on failure.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Result
}

type Orchestrator struct {
	service  Service
	pushplus notify.PushPlusSender
}

func NewOrchestrator(service Service, pushplus notify.PushPlusSender) *Orchestrator {
	return &Orchestrator{service: service, pushplus: pushplus}
}

// Run never retries: the first error ends this account's pipeline.
func (o *Orchestrator) Run(ctx context.Context, account models.Account) Outcome {
	start := time.Now()

	authed, err := o.service.Login(ctx, account)
	if err != nil {
		log.LogError(fmt.Sprintf("%s: login failed", account.Name), zap.String("account", account.Name), zap.Error(err))
		return failed(account.Name, err)
	}

	result, err := o.service.Checkin(ctx, authed)
	if err != nil {
		log.LogError(fmt.Sprintf("%s: check-in failed", account.Name), zap.String("account", account.Name), zap.Error(err))
		return failed(account.Name, err)
	}

	log.LogSuccess(fmt.Sprintf("%s: %s", account.Name, result),
		zap.String("account", account.Name), zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	if !account.HasPushPlus() {
		return succeeded(account.Name, result, false)
	}

	// Delivery does not change the account's outcome.
	if o.pushplus != nil {
		o.pushplus.Send(ctx, account.PushPlusToken, accountTitle(account.Name), accountContent(account.Name, result))
	}
	return succeeded(account.Name, result, true)
}

func accountTitle(name string) string {
	return name + " check-in"
}

func accountContent(name, result string) string {
	return fmt.Sprintf("**%s**: %s", name, result)
}
