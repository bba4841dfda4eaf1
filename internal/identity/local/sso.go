package local

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/photogrid/gallery/internal/config"
	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/db/models"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/repository"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	httphelper "github.com/zitadel/oidc/v3/pkg/http"
	"github.com/zitadel/oidc/v3/pkg/oidc"
)

// redirectCookieName remembers where to send the browser after the SSO callback.
const redirectCookieName = "gallery.sso_redirect"

// ErrAccountDisabled is returned when an SSO login maps to a disabled user.
var ErrAccountDisabled = errors.New("account disabled")

// SSO signs users in through an upstream OIDC issuer and turns the verified
// ID token into a local session, provisioning the user on first login.
type SSO struct {
	rp       rp.RelyingParty
	provider *Provider
	secure   bool
}

var _ identity.SSO = (*SSO)(nil)

// NewSSO discovers the issuer and creates the relying party.
func NewSSO(ctx context.Context, cfg config.SSOConfig, provider *Provider) (*SSO, error) {
	hashKey, err := randomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate cookie hash key: %w", err)
	}
	cryptoKey, err := randomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generate cookie crypto key: %w", err)
	}

	var cookieOpts []httphelper.CookieHandlerOpt
	if !provider.secure {
		cookieOpts = append(cookieOpts, httphelper.WithUnsecure())
	}
	cookieHandler := httphelper.NewCookieHandler(hashKey, cryptoKey, cookieOpts...)

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx, cfg.Issuer, cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI, cfg.Scopes,
		rp.WithCookieHandler(cookieHandler),
		rp.WithVerifierOpts(rp.WithIssuedAtMaxAge(10*time.Second)),
		rp.WithPKCE(cookieHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("create OIDC relying party: %w", err)
	}

	return &SSO{rp: relyingParty, provider: provider, secure: provider.secure}, nil
}

// LoginHandler starts the authorization code flow. The optional
// redirectedFrom query parameter is where the browser lands afterwards.
func (s *SSO) LoginHandler() http.Handler {
	start := rp.AuthURLHandler(func() string {
		state, err := randomState()
		if err != nil {
			logging.Error().Err(err).Msg("failed to generate SSO state")
		}
		return state
	}, s.rp)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if target := identity.SafeRedirect(r.URL.Query().Get("redirectedFrom")); target != "/" {
			http.SetCookie(w, &http.Cookie{
				Name:     redirectCookieName,
				Value:    target,
				Path:     "/",
				Expires:  time.Now().Add(10 * time.Minute),
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		start.ServeHTTP(w, r)
	})
}

// CallbackHandler exchanges the authorization code and starts a session.
func (s *SSO) CallbackHandler() http.Handler {
	onTokens := func(w http.ResponseWriter, r *http.Request, tokens *oidc.Tokens[*oidc.IDTokenClaims], state string, _ rp.RelyingParty) {
		ctx := r.Context()
		claims := tokens.IDTokenClaims

		result, err := s.signIn(ctx, claims.Subject, claims.Email, claims.Name)
		if err != nil {
			if errors.Is(err, ErrAccountDisabled) {
				http.Error(w, "Account disabled", http.StatusForbidden)
				return
			}
			logging.Ctx(ctx).Error().Err(err).Str("subject", claims.Subject).Msg("SSO callback failed")
			http.Error(w, "Failed to sign in", http.StatusInternalServerError)
			return
		}

		identity.WriteCookies(w, result.Cookies)
		http.Redirect(w, r, s.popRedirect(w, r), http.StatusFound)
	}
	return rp.CodeExchangeHandler(onTokens, s.rp)
}

// signIn finds the user for an upstream subject, creating it on first login,
// and starts a session.
func (s *SSO) signIn(ctx context.Context, subject, email, name string) (*identity.Result, error) {
	if subject == "" {
		return nil, fmt.Errorf("id token has no subject")
	}

	user, err := s.provider.users.GetBySubject(ctx, subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user = &models.User{
			ID:      bunx.NewUUIDv7(),
			Subject: &subject,
			Email:   strings.ToLower(email),
			Name:    name,
		}
		if err := s.provider.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("provision user %s: %w", subject, err)
		}
		logging.Ctx(ctx).Info().Str("user_id", user.ID).Str("subject", subject).Msg("provisioned SSO user")
	case err != nil:
		return nil, fmt.Errorf("lookup user by subject: %w", err)
	}

	if user.Disabled() {
		return nil, ErrAccountDisabled
	}
	if err := s.provider.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	return s.provider.StartSession(ctx, user)
}

// popRedirect reads and clears the redirect cookie.
func (s *SSO) popRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(redirectCookieName)
	if err != nil {
		return "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     redirectCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return identity.SafeRedirect(c.Value)
}

func randomState() (string, error) {
	b, err := randomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}
