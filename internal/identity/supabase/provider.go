// Package supabase authenticates gallery users against a Supabase project's
// GoTrue API, keeping the session in the same chunked cookie format the
// Supabase SSR helpers use so browser and server share one session.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
)

// ProviderName is reported in logs, metrics and sessions.
const ProviderName = "supabase"

// expiryMargin refreshes access tokens that expire within this window.
const expiryMargin = 10 * time.Second

// Options configures a Provider.
type Options struct {
	URL           string
	AnonKey       string
	SecureCookies bool
	HTTPClient    *http.Client
}

// Provider implements identity.Provider on top of GoTrue.
type Provider struct {
	client *Client
	jar    cookieJar
	now    func() time.Time
}

var _ identity.Provider = (*Provider)(nil)

// New creates a Supabase identity provider.
func New(opts Options) (*Provider, error) {
	if opts.URL == "" || opts.AnonKey == "" {
		return nil, fmt.Errorf("supabase url and anon key are required")
	}
	key, err := StorageKey(opts.URL)
	if err != nil {
		return nil, err
	}
	return &Provider{
		client: NewClient(opts.URL, opts.AnonKey, opts.HTTPClient),
		jar:    cookieJar{key: key, secure: opts.SecureCookies},
		now:    time.Now,
	}, nil
}

// Name implements identity.Provider.
func (p *Provider) Name() string { return ProviderName }

// CookieName returns the session cookie name (chunks append ".0", ".1", ...).
func (p *Provider) CookieName() string { return p.jar.key }

// CurrentUser implements identity.Provider.
//
// The access token is refreshed when it is about to expire, and once more when
// GoTrue rejects it. Refreshed sessions are returned as cookies. A session
// GoTrue no longer accepts yields clearing cookies and an anonymous result.
func (p *Provider) CurrentUser(ctx context.Context, cookies []*http.Cookie) (*identity.Result, error) {
	session, ok := p.load(ctx, cookies)
	if !ok {
		if _, present := p.jar.read(cookies); present {
			return &identity.Result{Cookies: p.jar.clear(cookies)}, nil
		}
		return &identity.Result{}, nil
	}

	refreshed := false
	if p.expiresSoon(session) {
		next, err := p.client.RefreshSession(ctx, session.RefreshToken)
		if err != nil {
			return p.refreshFailed(cookies, err)
		}
		session, refreshed = next, true
	}

	user, err := p.client.GetUser(ctx, session.AccessToken)
	if isAuthError(err) && !refreshed {
		next, refreshErr := p.client.RefreshSession(ctx, session.RefreshToken)
		if refreshErr != nil {
			return p.refreshFailed(cookies, refreshErr)
		}
		session, refreshed = next, true
		user, err = p.client.GetUser(ctx, session.AccessToken)
	}
	if err != nil {
		if isClientError(err) {
			return &identity.Result{Cookies: p.jar.clear(cookies)}, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	result := &identity.Result{Session: p.identitySession(user)}
	if refreshed {
		session.User = user
		written, err := p.cookies(session, cookies)
		if err != nil {
			return nil, err
		}
		result.Cookies = written
	}
	return result, nil
}

// SignIn implements identity.Provider.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Result, error) {
	session, err := p.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %v", identity.ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return p.sessionResult(session, nil)
}

// SignOut implements identity.Provider. Cookies are cleared even when GoTrue
// cannot be reached.
func (p *Provider) SignOut(ctx context.Context, cookies []*http.Cookie) (*identity.Result, error) {
	if session, ok := p.load(ctx, cookies); ok {
		if err := p.client.SignOut(ctx, session.AccessToken); err != nil && !isClientError(err) {
			logging.Ctx(ctx).Warn().Err(err).Msg("gotrue sign out failed, clearing cookies anyway")
		}
	}
	return &identity.Result{Cookies: p.jar.clear(cookies)}, nil
}

// RequestPasswordReset implements identity.Provider.
func (p *Provider) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	if err := p.client.Recover(ctx, email, redirectTo); err != nil {
		return fmt.Errorf("request password reset: %w", err)
	}
	return nil
}

// UpdatePassword implements identity.Provider. The caller must hold a session,
// typically the recovery session created by the reset link.
func (p *Provider) UpdatePassword(ctx context.Context, cookies []*http.Cookie, password string) (*identity.Result, error) {
	session, ok := p.load(ctx, cookies)
	if !ok {
		return nil, identity.ErrNoSession
	}

	var written []*http.Cookie
	if p.expiresSoon(session) {
		next, err := p.client.RefreshSession(ctx, session.RefreshToken)
		if err != nil {
			if isClientError(err) {
				return nil, identity.ErrNoSession
			}
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		session = next
		written, err = p.cookies(session, cookies)
		if err != nil {
			return nil, err
		}
	}

	user, err := p.client.UpdatePassword(ctx, session.AccessToken, password)
	if err != nil {
		if isAuthError(err) {
			return nil, identity.ErrNoSession
		}
		return nil, fmt.Errorf("update password: %w", err)
	}
	return &identity.Result{Session: p.identitySession(user), Cookies: written}, nil
}

// VerifyOTP implements identity.Provider.
func (p *Provider) VerifyOTP(ctx context.Context, tokenHash, otpType string) (*identity.Result, error) {
	session, err := p.client.VerifyOTP(ctx, tokenHash, otpType)
	if err != nil {
		if isClientError(err) {
			return nil, fmt.Errorf("%w: %v", identity.ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	return p.sessionResult(session, nil)
}

// load decodes the session cookie. Undecodable cookies are reported as absent.
func (p *Provider) load(ctx context.Context, cookies []*http.Cookie) (*Session, bool) {
	raw, ok := p.jar.read(cookies)
	if !ok {
		return nil, false
	}
	session, err := decodeSession(raw)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("discarding unreadable supabase session cookie")
		return nil, false
	}
	return session, true
}

// expiresSoon uses expires_at, falling back to the access token's exp claim.
func (p *Provider) expiresSoon(s *Session) bool {
	expiresAt := s.ExpiresAt
	if expiresAt == 0 {
		claims, err := parseAccessClaims(s.AccessToken)
		if err != nil || claims.ExpiresAt == 0 {
			return false
		}
		expiresAt = claims.ExpiresAt
	}
	return !p.now().Add(expiryMargin).Before(time.Unix(expiresAt, 0))
}

// refreshFailed clears cookies when GoTrue rejected the refresh token. Other
// failures leave the cookies alone so a later request can retry.
func (p *Provider) refreshFailed(cookies []*http.Cookie, err error) (*identity.Result, error) {
	if isClientError(err) {
		return &identity.Result{Cookies: p.jar.clear(cookies)}, nil
	}
	return nil, fmt.Errorf("refresh session: %w", err)
}

func (p *Provider) sessionResult(session *Session, existing []*http.Cookie) (*identity.Result, error) {
	if session.User == nil || session.User.ID == "" {
		return nil, errors.New("gotrue returned a session without a user")
	}
	written, err := p.cookies(session, existing)
	if err != nil {
		return nil, err
	}
	return &identity.Result{Session: p.identitySession(session.User), Cookies: written}, nil
}

func (p *Provider) cookies(session *Session, existing []*http.Cookie) ([]*http.Cookie, error) {
	value, err := encodeSession(session)
	if err != nil {
		return nil, err
	}
	return p.jar.write(value, existing), nil
}

func (p *Provider) identitySession(user *User) *identity.Session {
	return &identity.Session{UserID: user.ID, Email: user.Email, Provider: ProviderName}
}
