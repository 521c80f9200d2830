package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"checkin-runner/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram posts the report to a chat through the Bot API.
type Telegram struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client

	once   sync.Once
	bot    *tgbotapi.BotAPI
	botErr error
}

// NewTelegram creates the relay. The bot is only contacted on the first Send.
func NewTelegram(token string, chatID int64, endpoint string, timeout time.Duration) *Telegram {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Telegram{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, title, content string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.LogError("Telegram send panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	if ctx.Err() != nil {
		log.LogWarn("Telegram send skipped", zap.Error(ctx.Err()))
		return false
	}

	t.once.Do(func() {
		t.bot, t.botErr = tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	})
	if t.botErr != nil {
		log.LogError("Failed to initialize Telegram bot", zap.Error(t.botErr))
		return false
	}

	msg := tgbotapi.NewMessage(t.chatID, title+"\n\n"+content)
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		log.LogError("Telegram notification failed", zap.Int64("chat_id", t.chatID), zap.Error(err))
		return false
	}

	log.LogSuccess("Telegram notification sent", zap.Int64("chat_id", t.chatID))
	return true
}
