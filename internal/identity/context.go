package identity

import "context"

type sessionContextKey struct{}

// WithSession stores the session resolved by the gate in ctx.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext returns the gated session, or nil for anonymous requests.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey{}).(*Session)
	return session
}

type clientContextKey struct{}

// ClientInfo describes the browser behind a request. Providers that persist
// sessions record it.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// WithClientInfo stores the caller's user agent and address in ctx.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientContextKey{}, info)
}

// ClientInfoFromContext returns the client info stored by WithClientInfo.
func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientContextKey{}).(ClientInfo)
	return info, ok
}
