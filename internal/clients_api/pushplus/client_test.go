package pushplus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"checkin-runner/internal/infra/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAccepted(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"code":200,"msg":"ok","data":"abc"}`))
	}))
	defer srv.Close()

	ok := NewClient(srv.URL, time.Second, 0).Send(context.Background(), "  tok  ", "A check-in", "**A**: done")

	assert.True(t, ok)
	assert.Equal(t, message{Token: "tok", Title: "A check-in", Content: "**A**: done", Template: "markdown"}, got)
}

func TestSendRejectedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":903,"msg":"invalid token"}`))
	}))
	defer srv.Close()

	assert.False(t, NewClient(srv.URL, time.Second, 0).Send(context.Background(), "tok", "t", "c"))
}

func TestSendRejectedCodeIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"code":903,"msg":"invalid token"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 3)
	c.retry.BaseDelay = time.Millisecond

	assert.False(t, c.Send(context.Background(), "tok", "t", "c"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendRetriesRelayServerCode(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"code":999,"msg":"server exception"}`))
			return
		}
		w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 2)
	c.retry.BaseDelay = time.Millisecond

	assert.True(t, c.Send(context.Background(), "tok", "t", "c"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryableClassifier(t *testing.T) {
	assert.True(t, retryable(&RejectedError{Code: 999}))
	assert.True(t, retryable(&RejectedError{Code: 500}))
	assert.False(t, retryable(&RejectedError{Code: 903}))
	assert.False(t, retryable(&RejectedError{Code: 900}))
	assert.True(t, retryable(&retry.HTTPError{StatusCode: 503}))
	assert.False(t, retryable(&retry.HTTPError{StatusCode: 404}))
}

func TestSendHTTPErrorSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.False(t, NewClient(srv.URL, time.Second, 0).Send(context.Background(), "tok", "t", "c"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 2)
	c.retry.BaseDelay = time.Millisecond

	assert.True(t, c.Send(context.Background(), "tok", "t", "c"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendTransportErrorReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.NotPanics(t, func() {
		assert.False(t, NewClient(url, time.Second, 0).Send(context.Background(), "tok", "t", "c"))
	})
}

func TestSendMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	assert.False(t, NewClient(srv.URL, time.Second, 0).Send(context.Background(), "tok", "t", "c"))
}

func TestSendEmptyTokenSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	assert.False(t, NewClient(srv.URL, time.Second, 0).Send(context.Background(), "   ", "t", "c"))
	assert.Zero(t, calls.Load())
}

func TestSendInvalidEndpoint(t *testing.T) {
	assert.False(t, NewClient("://bad", time.Second, 0).Send(context.Background(), "tok", "t", "c"))
}
