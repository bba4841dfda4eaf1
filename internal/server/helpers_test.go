package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/photogrid/gallery/internal/authz"
	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/gate"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/migrations"
	"github.com/photogrid/gallery/internal/repository"
	"github.com/photogrid/gallery/internal/services/comment"
	"github.com/photogrid/gallery/internal/storage"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "secret1"
)

var signedIn = []*http.Cookie{{Name: "sid", Value: "valid"}}

// fakeProvider authenticates the cookie sid=valid. With rotate set it
// returns a refreshed cookie on every lookup.
type fakeProvider struct {
	mu sync.Mutex

	rotate     bool
	signOuts   int
	resetTo    string
	passwords  []string
	otpTypes   []string
	updateWith [][]*http.Cookie
}

func hasSession(cookies []*http.Cookie) bool {
	for _, c := range cookies {
		if c.Name == "sid" && c.Value == "valid" {
			return true
		}
	}
	return false
}

func sessionCookie() *http.Cookie {
	return &http.Cookie{Name: "sid", Value: "valid", Path: "/", HttpOnly: true}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CurrentUser(_ context.Context, cookies []*http.Cookie) (*identity.Result, error) {
	if !hasSession(cookies) {
		return &identity.Result{}, nil
	}
	result := &identity.Result{Session: &identity.Session{UserID: "u1", Email: testEmail, Provider: "fake"}}
	if f.rotate {
		result.Cookies = []*http.Cookie{{Name: "sid", Value: "valid", Path: "/", MaxAge: 3600}}
	}
	return result, nil
}

func (f *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Result, error) {
	if email != testEmail || password != testPassword {
		return nil, fmt.Errorf("%w: bad password", identity.ErrInvalidCredentials)
	}
	return &identity.Result{
		Session: &identity.Session{UserID: "u1", Email: email},
		Cookies: []*http.Cookie{sessionCookie()},
	}, nil
}

func (f *fakeProvider) SignOut(context.Context, []*http.Cookie) (*identity.Result, error) {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	return &identity.Result{Cookies: []*http.Cookie{{Name: "sid", Path: "/", MaxAge: -1}}}, nil
}

func (f *fakeProvider) RequestPasswordReset(_ context.Context, _ string, redirectTo string) error {
	f.mu.Lock()
	f.resetTo = redirectTo
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) UpdatePassword(_ context.Context, cookies []*http.Cookie, password string) (*identity.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateWith = append(f.updateWith, cookies)
	if !hasSession(cookies) {
		return nil, identity.ErrNoSession
	}
	f.passwords = append(f.passwords, password)
	return &identity.Result{Session: &identity.Session{UserID: "u1"}}, nil
}

func (f *fakeProvider) VerifyOTP(_ context.Context, tokenHash, otpType string) (*identity.Result, error) {
	f.mu.Lock()
	f.otpTypes = append(f.otpTypes, otpType)
	f.mu.Unlock()
	if tokenHash != "good" {
		return nil, fmt.Errorf("%w: otp expired", identity.ErrInvalidCredentials)
	}
	return &identity.Result{
		Session: &identity.Session{UserID: "u1"},
		Cookies: []*http.Cookie{sessionCookie()},
	}, nil
}

// memoryStore serves objects from a map. Keys are normalized like the S3 store.
type memoryStore struct {
	objects map[string]string
	err     error
}

func (m *memoryStore) Get(_ context.Context, key string) (*storage.Object, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, ok := m.objects[storage.NormalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("get object %q: NoSuchKey", key)
	}
	return &storage.Object{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentType:   "image/png",
		ContentLength: int64(len(body)),
	}, nil
}

func (m *memoryStore) PresignGet(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "https://bucket.example.com/" + storage.NormalizeKey(key) + "?X-Amz-Signature=abc", nil
}

type testEnv struct {
	router   chi.Router
	provider *fakeProvider
	comments *comment.Service
	store    *memoryStore
	upstream *[]string
}

type envOption func(*RouterOptions)

func newTestEnv(t *testing.T, private bool, opts ...envOption) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	authorizer, err := authz.New()
	require.NoError(t, err)

	provider := &fakeProvider{}
	svc := comment.NewService(repository.NewBunCommentRepository(db, repository.RetryPolicy{}))
	store := &memoryStore{objects: map[string]string{"k.png": "PNGDATA"}}

	var upstreamPaths []string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPaths = append(upstreamPaths, r.URL.Path)
		_, _ = io.WriteString(w, "page "+r.URL.Path)
	})

	routerOpts := RouterOptions{
		Gate:           gate.New(gate.NewClassifier(private), identity.NewResolver(provider, nil), nil),
		Authorizer:     authorizer,
		Provider:       provider,
		Comments:       svc,
		Store:          store,
		SiteURL:        "https://gallery.example.com/",
		LoginRateLimit: 100,
		Upstream:       upstream,
	}
	for _, opt := range opts {
		opt(&routerOpts)
	}

	return &testEnv{
		router:   NewRouter(routerOpts),
		provider: provider,
		comments: svc,
		store:    store,
		upstream: &upstreamPaths,
	}
}

func (e *testEnv) do(method, target, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
