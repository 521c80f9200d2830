package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"checkin-runner/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name  string
	ok    bool
	calls []string
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(ctx context.Context, title, content string) bool {
	f.calls = append(f.calls, title+"|"+content)
	return f.ok
}

type fakePushPlus struct {
	mu     sync.Mutex
	tokens []string
}

func (f *fakePushPlus) Send(ctx context.Context, token, title, content string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return token != "bad"
}

func TestFanoutSendsToEveryRelay(t *testing.T) {
	a := &fakeSender{name: "a", ok: true}
	b := &fakeSender{name: "b", ok: false}
	c := &fakeSender{name: "c", ok: true}

	f := NewFanout(a, nil, b, c)
	require.Equal(t, 3, f.Len())

	delivered := f.Send(context.Background(), "title", "body")

	assert.Equal(t, 2, delivered)
	for _, s := range []*fakeSender{a, b, c} {
		assert.Equal(t, []string{"title|body"}, s.calls, s.name)
	}
}

func TestFromConfigOneSenderPerToken(t *testing.T) {
	pp := &fakePushPlus{}
	cfg := &config.Config{PushPlus: config.PushPlusConfig{Tokens: []string{"t1", "bad", "t3"}}}

	f := FromConfig(cfg, pp)
	require.Equal(t, 3, f.Len())

	assert.Equal(t, 2, f.Send(context.Background(), "report", "lines"))
	assert.Equal(t, []string{"t1", "bad", "t3"}, pp.tokens)
	assert.Equal(t, "pushplus#2", f.senders[1].Name())
}

func TestFromConfigAddsTelegram(t *testing.T) {
	cfg := &config.Config{Telegram: config.TelegramConfig{BotToken: "123:abc", ChatID: 42}}

	f := FromConfig(cfg, &fakePushPlus{})
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "telegram", f.senders[0].Name())
}

func newTelegramServer(t *testing.T, sendOK bool) (*httptest.Server, *[]string) {
	t.Helper()
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"checkin","username":"checkin_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			texts = append(texts, r.Form.Get("text"))
			if !sendOK {
				w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &texts
}

func TestTelegramSend(t *testing.T) {
	srv, texts := newTelegramServer(t, true)

	tg := NewTelegram("123:abc", 42, srv.URL+"/bot%s/%s", time.Second)
	assert.True(t, tg.Send(context.Background(), "Check-in report", "A: ✅ ok"))
	require.Len(t, *texts, 1)
	assert.Equal(t, "Check-in report\n\nA: ✅ ok", (*texts)[0])
}

func TestTelegramSendFailureIsSwallowed(t *testing.T) {
	srv, _ := newTelegramServer(t, false)

	tg := NewTelegram("123:abc", 42, srv.URL+"/bot%s/%s", time.Second)
	assert.False(t, tg.Send(context.Background(), "t", "c"))
}

func TestTelegramUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/bot%s/%s"
	srv.Close()

	tg := NewTelegram("123:abc", 42, endpoint, time.Second)
	assert.False(t, tg.Send(context.Background(), "t", "c"))
}
