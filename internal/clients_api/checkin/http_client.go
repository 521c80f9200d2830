package checkin

// Client for the SSPanel-style check-in service.
// Login posts the account's credentials and keeps the session cookies,
// Checkin replays those cookies against /user/checkin.
// Every call goes through a shared rate limiter and the account's own circuit
// breaker, so one account's failures never reject another account's calls.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"checkin-runner/internal/infra/log"
	"checkin-runner/internal/models"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	loginPath   = "/auth/login"
	checkinPath = "/user/checkin"

	// retOK is the "ret" value of a successful login.
	retOK = 1
)

type Options struct {
	BaseURL         string        // e.g. https://ikuuu.one
	Timeout         time.Duration // per request, 30s when zero
	RateLimit       float64       // requests per second, 5 when zero
	MaxResponseSize int64         // bytes, 1MB when zero
	HTTPClient      *http.Client  // optional, Timeout is ignored when set
}

type Client struct {
	baseURL         string
	host            string
	httpClient      *http.Client
	rateLimiter     *rate.Limiter
	maxResponseSize int64

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker // by account email
}

type loginResponse struct {
	Ret int    `json:"ret"`
	Msg string `json:"msg"`
}

type checkinResponse struct {
	Ret int    `json:"ret"`
	Msg string `json:"msg"`
}

// response is what survives of an HTTP exchange once the body is read.
type response struct {
	status int
	header http.Header
	body   []byte
}

func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = 1 << 20
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		}
	}

	burst := int(opts.RateLimit * 2)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL:         u.String(),
		host:            u.Hostname(),
		httpClient:      httpClient,
		rateLimiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		breakers:        make(map[string]*gobreaker.CircuitBreaker),
		maxResponseSize: opts.MaxResponseSize,
	}, nil
}

// breakerFor returns the breaker guarding one account's calls.
func (c *Client) breakerFor(account string) *gobreaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	cb, ok := c.breakers[account]
	if !ok {
		cb = newBreaker(c.host + ":" + account)
		c.breakers[account] = cb
	}
	return cb
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "checkin:" + name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected password or a 4xx says nothing about the service's health.
		IsSuccessful: func(err error) bool {
			var ne *NetworkError
			if errors.As(err, &ne) {
				return !ne.transient()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.LogWarn("Circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// Login authenticates one account and returns it with its session cookie.
func (c *Client) Login(ctx context.Context, account models.Account) (*models.AuthenticatedAccount, error) {
	log.LogInfo("Logging in", zap.String("account", account.Name))

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, field := range [][2]string{
		{"host", c.host},
		{"email", account.Email},
		{"passwd", account.Passwd},
		{"code", ""},
		{"remember_me", "off"},
	} {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, fmt.Errorf("failed to build login form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build login form: %w", err)
	}

	resp, err := c.do(ctx, account.Email, "login", loginPath, &body, func(req *http.Request) {
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Origin", c.baseURL)
		req.Header.Set("Referer", c.baseURL+loginPath)
	})
	if err != nil {
		return nil, err
	}

	var lr loginResponse
	if err := json.Unmarshal(resp.body, &lr); err != nil {
		return nil, &NetworkError{Op: "login", StatusCode: resp.status, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if lr.Ret != retOK {
		return nil, &AuthError{Account: account.Name, Message: lr.Msg}
	}

	cookie := NormalizeCookies(resp.header.Values("Set-Cookie"))
	if cookie == "" {
		return nil, &AuthError{Account: account.Name, Message: ErrNoCookie}
	}

	log.LogInfo("Logged in", zap.String("account", account.Name), zap.String("msg", lr.Msg))
	return &models.AuthenticatedAccount{Account: account, Cookie: cookie}, nil
}

// Checkin performs the daily check-in and returns the service's message as is.
func (c *Client) Checkin(ctx context.Context, account *models.AuthenticatedAccount) (string, error) {
	log.LogInfo("Checking in", zap.String("account", account.Name))

	resp, err := c.do(ctx, account.Email, "checkin", checkinPath, nil, func(req *http.Request) {
		req.Header.Set("Cookie", account.Cookie)
		req.Header.Set("Origin", c.baseURL)
		req.Header.Set("Referer", c.baseURL+"/user")
	})
	if err != nil {
		return "", err
	}

	var cr checkinResponse
	if err := json.Unmarshal(resp.body, &cr); err != nil {
		return "", &NetworkError{Op: "checkin", StatusCode: resp.status, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}

	log.LogInfo("Checked in", zap.String("account", account.Name), zap.String("msg", cr.Msg))
	return cr.Msg, nil
}

// do sends one POST through the limiter and the account's breaker. Non-2xx
// responses come back as *NetworkError.
func (c *Client) do(ctx context.Context, account, op, endpoint string, body io.Reader, prepare func(*http.Request)) (*response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("rate limiter wait failed: %w", err)}
	}

	out, err := c.breakerFor(account).Execute(func() (interface{}, error) {
		resp, err := c.send(ctx, op, endpoint, body, prepare)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.LogError("Circuit breaker rejected request",
				zap.String("account", account), zap.String("endpoint", endpoint), zap.Error(err))
			return nil, &NetworkError{Op: op, Err: err}
		}
		return nil, err
	}
	return out.(*response), nil
}

func (c *Client) send(ctx context.Context, op, endpoint string, body io.Reader, prepare func(*http.Request)) (*response, error) {
	requestID := log.GenerateRequestID()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	setBrowserHeaders(req)
	if prepare != nil {
		prepare(req)
	}

	log.LogRequest(requestID, req.Method, endpoint, zap.String("url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(start).Milliseconds(), zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	log.LogResponse(requestID, resp.StatusCode, duration, zap.String("endpoint", endpoint))
	log.LogJSON(respBody, op+" response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode}
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
}
