// Package local authenticates gallery users against accounts stored in the
// gallery database. Browser sessions are opaque random tokens; only their
// SHA-256 hash is persisted.
package local

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/db/models"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	// ProviderName is reported in logs, metrics and sessions.
	ProviderName = "local"

	// CookieName is the session cookie set by the local provider.
	CookieName = "gallery.session"

	// DefaultSessionDuration is used when Options.SessionDuration is zero.
	DefaultSessionDuration = 12 * time.Hour

	// TokenLength is the number of random bytes in a session token.
	TokenLength = 32
)

// Options configures a Provider.
type Options struct {
	Users           repository.UserRepository
	Sessions        repository.SessionRepository
	SessionDuration time.Duration
	SecureCookies   bool
}

// Provider implements identity.Provider with database users and sessions.
type Provider struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	duration time.Duration
	secure   bool
	now      func() time.Time

	// touch records session use. Replaced in tests to run synchronously.
	touch func(sessionID string)
}

var _ identity.Provider = (*Provider)(nil)

// New creates a local identity provider.
func New(opts Options) (*Provider, error) {
	if opts.Users == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("local identity provider requires user and session repositories")
	}
	duration := opts.SessionDuration
	if duration <= 0 {
		duration = DefaultSessionDuration
	}

	p := &Provider{
		users:    opts.Users,
		sessions: opts.Sessions,
		duration: duration,
		secure:   opts.SecureCookies,
		now:      time.Now,
	}
	p.touch = p.touchAsync
	return p, nil
}

// Name implements identity.Provider.
func (p *Provider) Name() string { return ProviderName }

// GenerateToken returns a random hex session token and its SHA-256 hash.
func GenerateToken() (token, tokenHash string, err error) {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken hashes a session token for storage and lookup.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashPassword returns the bcrypt hash stored for a local password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CurrentUser implements identity.Provider.
//
// Sessions with less than half their lifetime left are extended and the cookie
// is re-issued with the new expiry.
func (p *Provider) CurrentUser(ctx context.Context, cookies []*http.Cookie) (*identity.Result, error) {
	token := readToken(cookies)
	if token == "" {
		return &identity.Result{}, nil
	}

	session, user, err := p.lookup(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return &identity.Result{Cookies: []*http.Cookie{p.expiredCookie()}}, nil
		}
		return nil, err
	}

	result := &identity.Result{Session: identitySession(user)}

	now := p.now()
	if session.ExpiresAt.Sub(now) < p.duration/2 {
		expiresAt := now.Add(p.duration)
		if err := p.sessions.Extend(ctx, session.ID, expiresAt); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("session_id", session.ID).Msg("failed to extend session")
		} else {
			result.Cookies = []*http.Cookie{p.cookie(token, expiresAt)}
		}
	}

	p.touch(session.ID)
	return result, nil
}

// SignIn implements identity.Provider.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Result, error) {
	user, err := p.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return nil, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}
	if user.Disabled() {
		return nil, fmt.Errorf("%w: account disabled", identity.ErrInvalidCredentials)
	}

	if err := p.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	return p.StartSession(ctx, user)
}

// StartSession creates a database session for user and returns its cookie.
func (p *Provider) StartSession(ctx context.Context, user *models.User) (*identity.Result, error) {
	token, tokenHash, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := p.now()
	session := &models.Session{
		ID:         bunx.NewUUIDv7(),
		UserID:     user.ID,
		TokenHash:  tokenHash,
		ExpiresAt:  now.Add(p.duration),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if info, ok := identity.ClientInfoFromContext(ctx); ok {
		if info.UserAgent != "" {
			session.UserAgent = &info.UserAgent
		}
		if info.IPAddress != "" {
			session.IPAddress = &info.IPAddress
		}
	}
	if err := p.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	return &identity.Result{
		Session: identitySession(user),
		Cookies: []*http.Cookie{p.cookie(token, session.ExpiresAt)},
	}, nil
}

// SignOut implements identity.Provider. The cookie is cleared even when the
// session cannot be revoked.
func (p *Provider) SignOut(ctx context.Context, cookies []*http.Cookie) (*identity.Result, error) {
	result := &identity.Result{Cookies: []*http.Cookie{p.expiredCookie()}}

	token := readToken(cookies)
	if token == "" {
		return result, nil
	}
	session, err := p.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logging.Ctx(ctx).Warn().Err(err).Msg("session lookup failed during sign out")
		}
		return result, nil
	}
	if err := p.sessions.Revoke(ctx, session.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", session.ID).Msg("failed to revoke session")
	}
	return result, nil
}

// RequestPasswordReset is not available without an email delivery service.
func (p *Provider) RequestPasswordReset(context.Context, string, string) error {
	return identity.ErrNotSupported
}

// UpdatePassword implements identity.Provider for the signed-in user.
func (p *Provider) UpdatePassword(ctx context.Context, cookies []*http.Cookie, password string) (*identity.Result, error) {
	token := readToken(cookies)
	if token == "" {
		return nil, identity.ErrNoSession
	}
	_, user, err := p.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := p.users.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	return &identity.Result{Session: identitySession(user)}, nil
}

// VerifyOTP is not available: the local provider sends no emails.
func (p *Provider) VerifyOTP(context.Context, string, string) (*identity.Result, error) {
	return nil, identity.ErrNotSupported
}

// lookup resolves a token to an active session and an enabled user.
// It returns identity.ErrNoSession when the token no longer authenticates.
func (p *Provider) lookup(ctx context.Context, token string) (*models.Session, *models.User, error) {
	session, err := p.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, identity.ErrNoSession
		}
		return nil, nil, fmt.Errorf("lookup session: %w", err)
	}
	if !session.Active(p.now()) {
		return nil, nil, identity.ErrNoSession
	}

	user, err := p.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, identity.ErrNoSession
		}
		return nil, nil, fmt.Errorf("load session user: %w", err)
	}
	if user.Disabled() {
		return nil, nil, identity.ErrNoSession
	}
	return session, user, nil
}

// touchAsync updates last_used_at without holding up the request.
func (p *Provider) touchAsync(sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.sessions.UpdateLastUsed(ctx, sessionID); err != nil {
			logging.Warn().Err(err).Str("session_id", sessionID).Msg("failed to update session last_used")
		}
	}()
}

func (p *Provider) cookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(p.now()).Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (p *Provider) expiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func readToken(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == CookieName {
			return c.Value
		}
	}
	return ""
}

func identitySession(user *models.User) *identity.Session {
	return &identity.Session{UserID: user.ID, Email: user.Email, Provider: ProviderName}
}
