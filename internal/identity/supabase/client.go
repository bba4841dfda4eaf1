package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "galleryd/identity/supabase"

// Session is the GoTrue session persisted in the auth cookie.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// User is the subset of the GoTrue user object the gallery uses.
type User struct {
	ID           string                 `json:"id"`
	Aud          string                 `json:"aud,omitempty"`
	Role         string                 `json:"role,omitempty"`
	Email        string                 `json:"email"`
	AppMetadata  map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// APIError is a non-2xx GoTrue response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gotrue: %d: %s", e.Status, e.Message)
}

// isClientError reports whether err is a 4xx GoTrue response, i.e. the
// request (token, credentials) was rejected rather than the call failing.
func isClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// isAuthError reports whether GoTrue rejected the bearer token.
func isAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}

// Client calls the GoTrue REST API of a Supabase project.
type Client struct {
	rest *resty.Client
	now  func() time.Time
}

// NewClient creates a GoTrue client. A nil httpClient uses a client with a 10s timeout.
func NewClient(projectURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	rest := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimSuffix(projectURL, "/")+"/auth/v1").
		SetHeader("apikey", anonKey).
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{})
	return &Client{rest: rest, now: time.Now}
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "", body, &s); err != nil {
		return nil, err
	}
	return c.stamp(&s), nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "", body, &s); err != nil {
		return nil, err
	}
	return c.stamp(&s), nil
}

// GetUser validates the access token and returns its user.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdatePassword sets a new password for the user owning the access token.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*User, error) {
	var u User
	body := map[string]string{"password": password}
	if err := c.do(ctx, http.MethodPut, "/user", nil, accessToken, body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SignOut revokes the refresh tokens of this session only.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", url.Values{"scope": {"local"}}, accessToken, nil, nil)
}

// Recover emails a password reset link that lands on redirectTo.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return c.do(ctx, http.MethodPost, "/recover", query, "", map[string]string{"email": email}, nil)
}

// VerifyOTP exchanges an emailed token hash for a session.
func (c *Client) VerifyOTP(ctx context.Context, tokenHash, otpType string) (*Session, error) {
	var s Session
	body := map[string]string{"token_hash": tokenHash, "type": otpType}
	if err := c.do(ctx, http.MethodPost, "/verify", nil, "", body, &s); err != nil {
		return nil, err
	}
	return c.stamp(&s), nil
}

// stamp fills expires_at from expires_in when GoTrue omitted it.
func (c *Client) stamp(s *Session) *Session {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Unix() + s.ExpiresIn
	}
	return s
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body, out interface{}) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "gotrue "+method+" "+path,
		attribute.String(telemetry.AttrGoTrueOp, path),
	)
	defer span.End()

	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if bearer != "" {
		req.SetAuthToken(bearer)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("gotrue %s %s: %w", method, path, err)
	}

	if resp.StatusCode() >= 300 {
		apiErr := decodeAPIError(resp.StatusCode(), resp.Body())
		telemetry.RecordError(span, apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("decode gotrue response: %w", err)
	}
	return nil
}

// decodeAPIError understands both GoTrue error shapes:
// {"code":400,"error_code":"invalid_credentials","msg":"..."} and
// {"error":"invalid_grant","error_description":"..."}.
func decodeAPIError(status int, raw []byte) *APIError {
	var payload struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &payload)

	apiErr := &APIError{Status: status, Code: payload.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = payload.Error
	}
	for _, msg := range []string{payload.Msg, payload.Message, payload.ErrorDescription} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// restyLogger routes resty's own diagnostics through the service logger.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logging.Error().Msgf(format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logging.Warn().Msgf(format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logging.Debug().Msgf(format, v...) }
