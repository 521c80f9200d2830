package checkin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkin-runner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL, RateLimit: 1000})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var testAccount = models.Account{Name: "A", Email: "a@x.com", Passwd: "p"}

func TestLoginSuccess(t *testing.T) {
	var form map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, loginPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		w.Header().Add("Set-Cookie", "uid=1; path=/")
		w.Header().Add("Set-Cookie", "key=abc; expires=Wed, 21 Oct 2026 07:28:00 GMT")
		w.Header().Add("Set-Cookie", "uid=2; path=/")
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 1, "msg": "ok"})
	}))

	acc, err := c.Login(context.Background(), testAccount)
	require.NoError(t, err)

	assert.Equal(t, "uid=2; key=abc", acc.Cookie)
	assert.Equal(t, testAccount, acc.Account)
	assert.Equal(t, map[string]string{
		"host":        "127.0.0.1",
		"email":       "a@x.com",
		"passwd":      "p",
		"code":        "",
		"remember_me": "off",
	}, form)
}

func TestLoginRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "uid=1")
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 0, "msg": "wrong password"})
	}))

	_, err := c.Login(context.Background(), testAccount)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "wrong password", authErr.Message)
	assert.Contains(t, err.Error(), "wrong password")
}

func TestLoginWithoutCookies(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 1, "msg": "ok"})
	}))

	_, err := c.Login(context.Background(), testAccount)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ErrNoCookie, authErr.Message)
}

func TestLoginHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))

	_, err := c.Login(context.Background(), testAccount)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)
	assert.Equal(t, "login", netErr.Op)
	assert.Contains(t, err.Error(), "403")
}

func TestLoginTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: url})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), testAccount)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Zero(t, netErr.StatusCode)
}

func TestCheckinSendsCookie(t *testing.T) {
	var gotCookie string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, checkinPath, r.URL.Path)
		gotCookie = r.Header.Get("Cookie")
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 1, "msg": "Checked in, +10 points"})
	}))

	msg, err := c.Checkin(context.Background(), &models.AuthenticatedAccount{Account: testAccount, Cookie: "sid=123; uid=1"})
	require.NoError(t, err)
	assert.Equal(t, "Checked in, +10 points", msg)
	assert.Equal(t, "sid=123; uid=1", gotCookie)
}

func TestCheckinPassesAlreadyDoneMessageThrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 0, "msg": "You have already checked in today"})
	}))

	msg, err := c.Checkin(context.Background(), &models.AuthenticatedAccount{Account: testAccount, Cookie: "sid=1"})
	require.NoError(t, err)
	assert.Equal(t, "You have already checked in today", msg)
}

func TestCheckinHTTPError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.Checkin(context.Background(), &models.AuthenticatedAccount{Account: testAccount, Cookie: "sid=1"})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "checkin", netErr.Op)
	assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
}

func TestBreakerIgnoresAuthFailures(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 0, "msg": "wrong password"})
	}))

	for i := 0; i < 10; i++ {
		_, err := c.Login(context.Background(), testAccount)
		require.True(t, IsAuthError(err))
	}
	assert.Equal(t, 10, calls)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 8; i++ {
		_, err := c.Login(context.Background(), testAccount)
		require.True(t, IsNetworkError(err))
	}
	assert.Equal(t, 5, calls)
}

func TestBreakerIsScopedToOneAccount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		if r.FormValue("email") == testAccount.Email {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Add("Set-Cookie", "uid=2; path=/")
		writeJSON(w, http.StatusOK, map[string]interface{}{"ret": 1, "msg": "ok"})
	}))

	for i := 0; i < 8; i++ {
		_, err := c.Login(context.Background(), testAccount)
		require.True(t, IsNetworkError(err))
	}

	other := models.Account{Name: "B", Email: "b@x.com", Passwd: "p"}
	authed, err := c.Login(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, "uid=2", authed.Cookie)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "ikuuu.one"})
	assert.Error(t, err)
}
