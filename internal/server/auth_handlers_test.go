package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t, true)

	t.Run("success sets the session cookie", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/login",
			`{"email":"ada@example.com","password":"secret1","redirectedFrom":"/p/abc"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success":true,"redirectTo":"/p/abc"}`, rec.Body.String())
		require.NotNil(t, findCookie(rec, "sid"))
	})

	t.Run("offsite redirect is dropped", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/login",
			`{"email":"ada@example.com","password":"secret1","redirectedFrom":"//evil.example.com"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"redirectTo":"/"}`, rec.Body.String())
	})

	t.Run("form post", func(t *testing.T) {
		form := url.Values{"email": {testEmail}, "password": {testPassword}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("multipart form post", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("email", testEmail))
		require.NoError(t, mw.WriteField("password", testPassword))
		require.NoError(t, mw.WriteField("redirectedFrom", "/p/abc"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/login", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success":true,"redirectTo":"/p/abc"}`, rec.Body.String())
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"nope"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid email or password"}`, rec.Body.String())
		assert.Nil(t, findCookie(rec, "sid"))
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/login", `{"email":""}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, true, func(o *RouterOptions) { o.LoginRateLimit = 2 })

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"nope"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := env.do(http.MethodPost, "/login", `{"email":"ada@example.com","password":"secret1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/logout", "", signedIn)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	c := findCookie(rec, "sid")
	require.NotNil(t, c)
	assert.Equal(t, -1, c.MaxAge)
	assert.Equal(t, 1, env.provider.signOuts)
}

func TestForgotPassword(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodPost, "/forgot-password", `{"email":"ada@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://gallery.example.com/reset-password", env.provider.resetTo)

	rec = env.do(http.MethodPost, "/forgot-password", `{"email":" "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name       string
		body       string
		cookies    []*http.Cookie
		wantStatus int
		wantError  string
	}{
		{"mismatch", `{"password":"secret1","confirmPassword":"secret2"}`, signedIn, http.StatusBadRequest, "Passwords do not match"},
		{"too short", `{"password":"abc","confirmPassword":"abc"}`, signedIn, http.StatusBadRequest, "Password must be at least 6 characters"},
		{"no recovery session", `{"password":"secret9","confirmPassword":"secret9"}`, nil, http.StatusUnauthorized, "Invalid or expired password reset link. Please request a new one."},
		{"updated", `{"password":"secret9","confirmPassword":"secret9"}`, signedIn, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/reset-password", tt.body, tt.cookies)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantError != "" {
				assert.JSONEq(t, `{"error":"`+tt.wantError+`"}`, rec.Body.String())
			}
		})
	}
	assert.Equal(t, []string{"secret9"}, env.provider.passwords)
}

func TestSetup(t *testing.T) {
	env := newTestEnv(t, true)

	t.Run("invite sets the password on the verified session", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/setup",
			`{"tokenHash":"good","password":"secret9","confirmPassword":"secret9"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NotNil(t, findCookie(rec, "sid"))
		assert.Equal(t, []string{"invite"}, env.provider.otpTypes)
		assert.Equal(t, []string{"secret9"}, env.provider.passwords)
		require.Len(t, env.provider.updateWith, 1)
		assert.True(t, hasSession(env.provider.updateWith[0]))
	})

	t.Run("expired invite", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/setup",
			`{"tokenHash":"stale","password":"secret9","confirmPassword":"secret9"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid or expired invite link"}`, rec.Body.String())
	})
}

func TestAuthCallback(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		name         string
		query        string
		wantLocation string
		wantCookie   bool
	}{
		{"magic link", "token_hash=good&type=magiclink&next=/p/abc", "/p/abc", true},
		{"recovery defaults to reset page", "token_hash=good&type=recovery", "/reset-password", true},
		{"offsite next", "token_hash=good&type=magiclink&next=https://evil.example.com", "/", true},
		{"expired token", "token_hash=stale&type=magiclink", "/login?error=Invalid+or+expired+link", false},
		{"missing token", "type=magiclink", "/login?error=Invalid+or+expired+link", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/auth/callback?"+tt.query, "", nil)
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantCookie, findCookie(rec, "sid") != nil)
		})
	}
}

func TestWhoAmI(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(http.MethodGet, "/api/auth/whoami", "", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	rec = env.do(http.MethodGet, "/api/auth/whoami", "", signedIn)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"u1","email":"ada@example.com","provider":"fake"}`, rec.Body.String())
}
