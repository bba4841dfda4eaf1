package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/photogrid/gallery/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider authenticates the cookie sid=valid and refreshes it on every call.
type fakeProvider struct {
	calls int
	err   error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CurrentUser(_ context.Context, cookies []*http.Cookie) (*identity.Result, error) {
	f.calls++
	if f.err != nil {
		return &identity.Result{Cookies: []*http.Cookie{{Name: "sid", MaxAge: -1}}}, f.err
	}
	for _, c := range cookies {
		if c.Name == "sid" && c.Value == "valid" {
			return &identity.Result{
				Session: &identity.Session{UserID: "u1", Email: "ada@example.com", Provider: "fake"},
				Cookies: []*http.Cookie{{Name: "sid", Value: "valid", Path: "/"}},
			}, nil
		}
	}
	return &identity.Result{}, nil
}

func (f *fakeProvider) SignIn(context.Context, string, string) (*identity.Result, error) {
	return nil, identity.ErrNotSupported
}

func (f *fakeProvider) SignOut(context.Context, []*http.Cookie) (*identity.Result, error) {
	return nil, identity.ErrNotSupported
}

func (f *fakeProvider) RequestPasswordReset(context.Context, string, string) error {
	return identity.ErrNotSupported
}

func (f *fakeProvider) UpdatePassword(context.Context, []*http.Cookie, string) (*identity.Result, error) {
	return nil, identity.ErrNotSupported
}

func (f *fakeProvider) VerifyOTP(context.Context, string, string) (*identity.Result, error) {
	return nil, identity.ErrNotSupported
}

var signedIn = []*http.Cookie{{Name: "sid", Value: "valid"}}

func newTestGate(private bool) (*Gate, *fakeProvider) {
	provider := &fakeProvider{}
	return New(NewClassifier(private), identity.NewResolver(provider, nil), nil), provider
}

func TestDecide_PublicAllowListIsAllowedAnonymously(t *testing.T) {
	g, _ := newTestGate(true)

	paths := []string{
		"/login", "/login/sso", "/reset-password", "/forgot-password", "/auth/callback",
		"/setup", "/static/app.css", "/_next/static/chunk.js", "/favicons/icon-32.png",
		"/favicon.ico", "/health", "/feed", "/grid", "/",
	}
	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			d, _ := g.Decide(context.Background(), p, nil)
			assert.Equal(t, Allow, d.Kind)
		})
	}
}

func TestDecide_ImagePathsRejectAnonymous(t *testing.T) {
	g, _ := newTestGate(false)

	for _, p := range []string{
		"/_next/image",
		"/_next/image?url=%2Fphoto.jpg",
		"/api/protected-image/abc.jpg",
		"/api/presigned-url/abc.jpg",
	} {
		t.Run(p, func(t *testing.T) {
			d, _ := g.Decide(context.Background(), p, nil)
			assert.Equal(t, Reject, d.Kind)
			assert.Equal(t, http.StatusUnauthorized, d.Status)

			d, res := g.Decide(context.Background(), p, signedIn)
			assert.Equal(t, Allow, d.Kind)
			assert.True(t, res.Authenticated())
		})
	}
}

func TestDecide_LegacyRedirectsBeforeAuth(t *testing.T) {
	tests := []struct {
		path   string
		target string
	}{
		{"/admin", "/admin/photos"},
		{"/og", "/og/sample"},
	}

	for _, tt := range tests {
		for _, cookies := range [][]*http.Cookie{nil, signedIn} {
			g, provider := newTestGate(true)
			d, res := g.Decide(context.Background(), tt.path, cookies)

			assert.Equal(t, Redirect, d.Kind, tt.path)
			assert.Equal(t, tt.target, d.Target)
			assert.Zero(t, provider.calls, "identity is not consulted for legacy redirects")
			assert.Empty(t, res.Cookies)
		}
	}
}

func TestDecide_Rewrites(t *testing.T) {
	g, _ := newTestGate(true)

	d, _ := g.Decide(context.Background(), "/photos/abc123", signedIn)
	assert.Equal(t, Rewrite, d.Kind)
	assert.Equal(t, "/p/abc123", d.Target)

	d, _ = g.Decide(context.Background(), "/t/xyz", signedIn)
	assert.Equal(t, Rewrite, d.Kind)
	assert.Equal(t, "/tag/xyz", d.Target)
}

func TestDecide_RewriteChecksOriginalPath(t *testing.T) {
	private, _ := newTestGate(true)
	d, _ := private.Decide(context.Background(), "/photos/abc123", nil)
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, "/login?redirectedFrom=%2Fphotos%2Fabc123", d.Target)

	open, _ := newTestGate(false)
	d, _ = open.Decide(context.Background(), "/photos/abc123", nil)
	assert.Equal(t, Rewrite, d.Kind)
	assert.Equal(t, "/p/abc123", d.Target)
}

func TestDecide_ProtectedRedirectsToLogin(t *testing.T) {
	g, _ := newTestGate(true)

	d, res := g.Decide(context.Background(), "/admin/photos", nil)
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, "/login?redirectedFrom=%2Fadmin%2Fphotos", d.Target)
	assert.False(t, res.Authenticated())

	d, res = g.Decide(context.Background(), "/admin/photos", signedIn)
	assert.Equal(t, Allow, d.Kind)
	require.True(t, res.Authenticated())
	assert.Equal(t, "u1", res.Session.UserID)
	assert.Len(t, res.Cookies, 1)
}

func TestDecide_OpenGallery(t *testing.T) {
	g, _ := newTestGate(false)

	tests := []struct {
		path string
		want DecisionKind
	}{
		{"/p/abc123", Allow},
		{"/tag/xyz", Allow},
		{"/admin/photos", Redirect},
		{"/api/auth/whoami", Redirect},
		{"/logout", Redirect},
		{"/api/comments/abc", Allow},
	}
	for _, tt := range tests {
		d, _ := g.Decide(context.Background(), tt.path, nil)
		assert.Equal(t, tt.want, d.Kind, tt.path)
	}
}

func TestDecide_ProviderErrorIsAnonymous(t *testing.T) {
	g, provider := newTestGate(true)
	provider.err = errors.New("gotrue unavailable")

	d, res := g.Decide(context.Background(), "/admin/photos", signedIn)
	assert.Equal(t, Redirect, d.Kind)
	assert.False(t, res.Authenticated())
	assert.Len(t, res.Cookies, 1, "provider cookies survive the error")
}

func TestLoginRedirect(t *testing.T) {
	assert.Equal(t, "/login?redirectedFrom=%2F", LoginRedirect("/"))
	assert.Equal(t, "/login?redirectedFrom=%2Fp%2Fa+b", LoginRedirect("/p/a b"))
}

func TestClassify(t *testing.T) {
	c := NewClassifier(true)

	tests := []struct {
		path string
		want Classification
	}{
		{"/admin", Classification{Kind: Protected, Action: ActionRedirect, Target: "/admin/photos"}},
		{"/admin/", Classification{Kind: Protected}},
		{"/og", Classification{Kind: Protected, Action: ActionRedirect, Target: "/og/sample"}},
		{"/photos/abc123", Classification{Kind: Protected, Action: ActionRewrite, Target: "/p/abc123"}},
		{"/photos/", Classification{Kind: Protected}},
		{"/t/xyz", Classification{Kind: Protected, Action: ActionRewrite, Target: "/tag/xyz"}},
		{"/login", Classification{Kind: Public}},
		{"/feed", Classification{Kind: Public}},
		{"/feed/rss", Classification{Kind: Protected}},
		{"/_next/image", Classification{Kind: Protected}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.path), tt.path)
	}
}

func TestIsStaticPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/_next/static/chunk.js", true},
		{"/static/app.css", true},
		{"/favicon.ico", true},
		{"/favicons/apple.png", true},
		{"/logo.SVG", true},
		{"/photos/cover.webp", true},
		{"/_next/image", false},
		{"/api/protected-image/abc.jpg", false},
		{"/api/presigned-url/abc.png", false},
		{"/admin/photos", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsStaticPath(tt.path), tt.path)
	}
}

func TestMiddleware(t *testing.T) {
	var gotPath string
	var gotSession *identity.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSession = identity.SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name         string
		path         string
		cookies      []*http.Cookie
		wantStatus   int
		wantLocation string
		wantPath     string
		wantSession  bool
		wantCookie   bool
	}{
		{name: "static bypass", path: "/static/app.css", wantStatus: http.StatusNoContent, wantPath: "/static/app.css"},
		{name: "image anonymous", path: "/_next/image", wantStatus: http.StatusUnauthorized},
		{name: "legacy redirect", path: "/admin", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/admin/photos"},
		{name: "login redirect", path: "/admin/photos", wantStatus: http.StatusTemporaryRedirect, wantLocation: "/login?redirectedFrom=%2Fadmin%2Fphotos"},
		{name: "rewrite", path: "/photos/abc", cookies: signedIn, wantStatus: http.StatusNoContent, wantPath: "/p/abc", wantSession: true, wantCookie: true},
		{name: "allow with session", path: "/admin/photos", cookies: signedIn, wantStatus: http.StatusNoContent, wantPath: "/admin/photos", wantSession: true, wantCookie: true},
		{name: "public anonymous", path: "/login", wantStatus: http.StatusNoContent, wantPath: "/login"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotPath, gotSession = "", nil
			g, _ := newTestGate(true)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()
			g.Middleware(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, tt.wantSession, gotSession != nil)
			assert.Equal(t, tt.wantCookie, rec.Header().Get("Set-Cookie") != "")
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "Authentication required")
			}
		})
	}
}
