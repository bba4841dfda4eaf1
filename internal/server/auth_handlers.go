package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/photogrid/gallery/internal/gate"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
)

// MinPasswordLength is the shortest password accepted by reset and setup.
const MinPasswordLength = 6

const (
	otpTypeInvite   = "invite"
	otpTypeRecovery = "recovery"

	pathResetPassword = "/reset-password"
)

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	RedirectedFrom string `json:"redirectedFrom"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	TokenHash       string `json:"tokenHash"`
	Type            string `json:"type"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type whoAmIResponse struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

// HandleLogin signs in with email and password.
func HandleLogin(provider identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(w, r, &req, "email", "password", "redirectedFrom"); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}

		result, err := provider.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				logging.Ctx(r.Context()).Info().Err(err).Msg("sign in rejected")
				writeError(w, http.StatusUnauthorized, "Invalid email or password")
				return
			}
			writeInternal(w, r, err, "Sign in failed")
			return
		}

		identity.WriteCookies(w, result.Cookies)
		writeJSON(w, http.StatusOK, successResponse{Success: true, RedirectTo: identity.SafeRedirect(req.RedirectedFrom)})
	}
}

// HandleLogout ends the session and sends the browser to the login page.
// Cookies are cleared even when the provider fails.
func HandleLogout(provider identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := provider.SignOut(r.Context(), r.Cookies())
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("sign out failed")
		}
		if result != nil {
			identity.WriteCookies(w, result.Cookies)
		}
		http.Redirect(w, r, gate.PathLogin, http.StatusSeeOther)
	}
}

// HandleForgotPassword emails a reset link that lands on /reset-password.
func HandleForgotPassword(provider identity.Provider, siteURL string) http.HandlerFunc {
	redirectTo := strings.TrimSuffix(siteURL, "/") + pathResetPassword
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if err := decodeBody(w, r, &req, "email"); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			writeError(w, http.StatusBadRequest, "Email is required")
			return
		}

		if err := provider.RequestPasswordReset(r.Context(), req.Email, redirectTo); err != nil {
			if errors.Is(err, identity.ErrNotSupported) {
				writeError(w, http.StatusNotImplemented, "Password reset is not available")
				return
			}
			writeInternal(w, r, err, "Failed to send reset link")
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// HandleResetPassword sets a new password for the recovery session.
func HandleResetPassword(provider identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if err := decodeBody(w, r, &req, "password", "confirmPassword"); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if msg := checkPasswords(req.Password, req.ConfirmPassword); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		result, err := provider.UpdatePassword(r.Context(), r.Cookies(), req.Password)
		if err != nil {
			writePasswordError(w, r, err, "Invalid or expired password reset link. Please request a new one.")
			return
		}
		identity.WriteCookies(w, result.Cookies)
		writeJSON(w, http.StatusOK, successResponse{Success: true, RedirectTo: "/"})
	}
}

// HandleSetup accepts an invite: the emailed token is verified, then the
// password is set on the session it creates.
func HandleSetup(provider identity.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if err := decodeBody(w, r, &req, "tokenHash", "type", "password", "confirmPassword"); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.TokenHash == "" {
			writeError(w, http.StatusBadRequest, "Invalid or expired invite link")
			return
		}
		if msg := checkPasswords(req.Password, req.ConfirmPassword); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}
		if req.Type == "" {
			req.Type = otpTypeInvite
		}

		verified, err := provider.VerifyOTP(r.Context(), req.TokenHash, req.Type)
		if err != nil {
			writePasswordError(w, r, err, "Invalid or expired invite link")
			return
		}
		identity.WriteCookies(w, verified.Cookies)

		cookies := identity.MergeCookies(r.Cookies(), verified.Cookies)
		updated, err := provider.UpdatePassword(r.Context(), cookies, req.Password)
		if err != nil {
			writePasswordError(w, r, err, "Invalid or expired invite link")
			return
		}
		identity.WriteCookies(w, updated.Cookies)
		writeJSON(w, http.StatusOK, successResponse{Success: true, RedirectTo: "/"})
	}
}

// HandleAuthCallback finishes an emailed link (token_hash and type) or, when
// SSO is configured, an upstream authorization code.
func HandleAuthCallback(provider identity.Provider, sso identity.SSO) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code") != "" && sso != nil {
			sso.CallbackHandler().ServeHTTP(w, r)
			return
		}

		tokenHash, otpType := q.Get("token_hash"), q.Get("type")
		if tokenHash == "" || otpType == "" {
			loginError(w, r, "Invalid or expired link")
			return
		}

		result, err := provider.VerifyOTP(r.Context(), tokenHash, otpType)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("type", otpType).Msg("otp verification failed")
			loginError(w, r, "Invalid or expired link")
			return
		}
		identity.WriteCookies(w, result.Cookies)

		next := q.Get("next")
		if next == "" && otpType == otpTypeRecovery {
			next = pathResetPassword
		}
		http.Redirect(w, r, identity.SafeRedirect(next), http.StatusSeeOther)
	}
}

// HandleWhoAmI returns the user the gate resolved for this request.
func HandleWhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := identity.SessionFromContext(r.Context())
		if session == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		writeJSON(w, http.StatusOK, whoAmIResponse{
			UserID:   session.UserID,
			Email:    session.Email,
			Provider: session.Provider,
		})
	}
}

func checkPasswords(password, confirm string) string {
	if password != confirm {
		return "Passwords do not match"
	}
	if len([]rune(password)) < MinPasswordLength {
		return "Password must be at least 6 characters"
	}
	return ""
}

func writePasswordError(w http.ResponseWriter, r *http.Request, err error, rejected string) {
	switch {
	case errors.Is(err, identity.ErrNoSession), errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, rejected)
	case errors.Is(err, identity.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, "Not available with this identity provider")
	default:
		writeInternal(w, r, err, "Failed to set password")
	}
}

func loginError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, gate.PathLogin+"?"+url.Values{"error": {message}}.Encode(), http.StatusSeeOther)
}
