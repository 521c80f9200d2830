package pushplus

// PushPlus relay client. Send never returns an error: a notification that
// does not go out is logged and reported as false.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"checkin-runner/internal/infra/log"
	"checkin-runner/internal/infra/retry"

	"go.uber.org/zap"
)

// Codes in the relay's response body. 200 is accepted, 999 is the relay's
// own "server exception"; 9xx below it are token and quota rejections.
const (
	codeOK          = 200
	codeServerError = 999
)

// RejectedError is a 2xx answer whose body code is not 200.
type RejectedError struct {
	Code int
	Msg  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("pushplus rejected message: code %d: %s", e.Code, e.Msg)
}

// temporary reports whether the relay itself failed, as opposed to refusing
// the token or the message.
func (e *RejectedError) temporary() bool {
	return e.Code == codeServerError || (e.Code >= 500 && e.Code < 600)
}

// retryable extends the HTTP status rule with body codes for relay-side failures.
func retryable(err error) bool {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.temporary()
	}
	return retry.IsRetryable(err)
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	retry      retry.Options
}

type message struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
}

type sendResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// NewClient builds a relay client. maxRetries only applies to 429/5xx answers
// and relay-side body codes; zero means exactly one POST per Send.
func NewClient(endpoint string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		retry: retry.Options{
			MaxRetries: maxRetries,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
			Retryable:  retryable,
		},
	}
}

// Send posts a markdown message and reports whether the relay accepted it.
func (c *Client) Send(ctx context.Context, token, title, content string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.LogError("PushPlus send panicked", zap.String("title", title), zap.Any("panic", r))
			ok = false
		}
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		log.LogWarn("PushPlus token is empty, skipping notification", zap.String("title", title))
		return false
	}

	payload, err := json.Marshal(message{Token: token, Title: title, Content: content, Template: "markdown"})
	if err != nil {
		log.LogError("Failed to encode PushPlus message", zap.Error(err))
		return false
	}

	var resp sendResponse
	err = retry.Do(ctx, c.retry, func() error {
		return c.post(ctx, payload, &resp)
	})
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		log.LogError("PushPlus rejected notification",
			zap.String("title", title), zap.Int("code", rejected.Code), zap.String("msg", rejected.Msg))
		return false
	}
	if err != nil {
		log.LogError("PushPlus notification failed", zap.String("title", title), zap.Error(err))
		return false
	}

	log.LogSuccess("PushPlus notification sent", zap.String("title", title))
	return true
}

func (c *Client) post(ctx context.Context, payload []byte, out *sendResponse) error {
	requestID := log.GenerateRequestID()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.LogRequest(requestID, req.Method, c.endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(start).Milliseconds(), zap.String("endpoint", c.endpoint), zap.Error(err))
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	log.LogResponse(requestID, resp.StatusCode, time.Since(start).Milliseconds(), zap.String("endpoint", c.endpoint))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       body,
			RetryAfter: retry.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Code != codeOK {
		return &RejectedError{Code: out.Code, Msg: out.Msg}
	}
	return nil
}
