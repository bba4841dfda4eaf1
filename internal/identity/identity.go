// Package identity defines the boundary between the gallery and whoever
// authenticates its users. The gate and the auth handlers depend only on
// Provider; supabase and local are the two implementations.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrInvalidCredentials is returned by SignIn for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrNotSupported is returned by operations a provider does not implement.
	ErrNotSupported = errors.New("operation not supported by identity provider")

	// ErrNoSession is returned by operations that need a signed-in user.
	ErrNoSession = errors.New("no active session")
)

// Session is the authenticated user of one request.
type Session struct {
	UserID   string
	Email    string
	Provider string
}

// Result carries an optional session and the cookies a provider wants written
// onto the response (refreshed tokens, renewed expiry, or clearing cookies).
type Result struct {
	Session *Session
	Cookies []*http.Cookie
}

// Authenticated reports whether the result holds a session.
func (r *Result) Authenticated() bool {
	return r != nil && r.Session != nil
}

// Provider authenticates users from request cookies.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// CurrentUser returns the session encoded in cookies. A nil Session with a
	// nil error means anonymous.
	CurrentUser(ctx context.Context, cookies []*http.Cookie) (*Result, error)

	SignIn(ctx context.Context, email, password string) (*Result, error)
	SignOut(ctx context.Context, cookies []*http.Cookie) (*Result, error)
	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, cookies []*http.Cookie, password string) (*Result, error)

	// VerifyOTP exchanges an emailed token hash (invite, recovery, magic link) for a session.
	VerifyOTP(ctx context.Context, tokenHash, otpType string) (*Result, error)
}

// SSO is implemented by providers that can delegate sign-in to an upstream OIDC issuer.
type SSO interface {
	LoginHandler() http.Handler
	CallbackHandler() http.Handler
}

// WriteCookies sets every cookie on the response.
func WriteCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}

// MergeCookies overlays cookies onto base; later cookies with the same name win.
// Used when a request carries cookies that a provider result just replaced.
func MergeCookies(base, overlay []*http.Cookie) []*http.Cookie {
	byName := make(map[string]int, len(base))
	merged := make([]*http.Cookie, 0, len(base)+len(overlay))
	for _, c := range base {
		byName[c.Name] = len(merged)
		merged = append(merged, c)
	}
	for _, c := range overlay {
		if i, ok := byName[c.Name]; ok {
			merged[i] = c
			continue
		}
		byName[c.Name] = len(merged)
		merged = append(merged, c)
	}

	live := merged[:0]
	for _, c := range merged {
		if c.MaxAge >= 0 {
			live = append(live, c)
		}
	}
	return live
}

// SafeRedirect returns target when it is a path on this site, else "/".
// Control characters are refused since browsers drop them, which can turn
// "/\t/host" into "//host".
func SafeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "/"
	}
	if strings.IndexFunc(target, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return "/"
	}
	return target
}
