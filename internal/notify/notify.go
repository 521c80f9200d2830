package notify

import (
	"context"
	"fmt"

	"checkin-runner/internal/config"
	"checkin-runner/internal/infra/log"

	"go.uber.org/zap"
)

// Sender is one notification destination. Send reports delivery and never
// returns an error; failures are logged by the implementation.
type Sender interface {
	Name() string
	Send(ctx context.Context, title, content string) bool
}

// PushPlusSender is what the PushPlus client offers: one call per token.
type PushPlusSender interface {
	Send(ctx context.Context, token, title, content string) bool
}

// PushPlus binds a relay client to one token.
type PushPlus struct {
	client PushPlusSender
	token  string
	index  int
}

func NewPushPlus(client PushPlusSender, token string, index int) *PushPlus {
	return &PushPlus{client: client, token: token, index: index}
}

func (p *PushPlus) Name() string { return fmt.Sprintf("pushplus#%d", p.index+1) }

func (p *PushPlus) Send(ctx context.Context, title, content string) bool {
	return p.client.Send(ctx, p.token, title, content)
}

// Fanout delivers the same message to every configured relay, one after the other.
type Fanout struct {
	senders []Sender
}

func NewFanout(senders ...Sender) *Fanout {
	f := &Fanout{}
	for _, s := range senders {
		f.Add(s)
	}
	return f
}

func (f *Fanout) Add(s Sender) {
	if s != nil {
		f.senders = append(f.senders, s)
	}
}

func (f *Fanout) Len() int { return len(f.senders) }

// Send returns how many relays accepted the message.
func (f *Fanout) Send(ctx context.Context, title, content string) int {
	delivered := 0
	for _, s := range f.senders {
		if s.Send(ctx, title, content) {
			delivered++
			continue
		}
		log.LogWarn("Notification not delivered", zap.String("relay", s.Name()))
	}
	return delivered
}

// FromConfig builds the batch relays: one PushPlus sender per token, plus
// Telegram when a bot token is configured.
func FromConfig(cfg *config.Config, pushplus PushPlusSender) *Fanout {
	f := NewFanout()
	for i, token := range cfg.PushPlus.Tokens {
		f.Add(NewPushPlus(pushplus, token, i))
	}
	if cfg.Telegram.BotToken != "" {
		f.Add(NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Endpoint, cfg.App.Timeout()))
	}
	return f
}
