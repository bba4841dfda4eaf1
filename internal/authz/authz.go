// Package authz decides which API routes a principal may call. Policies live
// in an embedded casbin model and policy file.
package authz

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/photogrid/gallery/internal/identity"
	"github.com/photogrid/gallery/internal/logging"
)

// Subjects known to the policy. authenticated inherits every anonymous grant.
const (
	SubjectAnonymous     = "anonymous"
	SubjectAuthenticated = "authenticated"
)

//go:embed model.conf
var modelContent string

//go:embed policy.csv
var policyContent string

// Authorizer enforces the API policy.
type Authorizer struct {
	enforcer casbin.IEnforcer
}

// New loads the embedded model and policy.
func New() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(policyContent))
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// SubjectFor maps a request session to a policy subject.
func SubjectFor(session *identity.Session) string {
	if session == nil {
		return SubjectAnonymous
	}
	return SubjectAuthenticated
}

// Allowed reports whether subject may call method on path.
func (a *Authorizer) Allowed(subject, path, method string) (bool, error) {
	ok, err := a.enforcer.Enforce(subject, path, method)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s for %s: %w", method, path, subject, err)
	}
	return ok, nil
}

// Middleware rejects API calls the session may not make. A route is denied
// unless the policy grants it to the subject: 401 for anonymous callers,
// 403 otherwise.
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := SubjectFor(identity.SessionFromContext(r.Context()))

		allowed, err := a.Allowed(subject, policyPath(r.URL.Path), r.Method)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("authorization check failed")
			writeError(w, http.StatusInternalServerError, "Authorization error")
			return
		}
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		if subject == SubjectAnonymous {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		writeError(w, http.StatusForbidden, "Forbidden")
	})
}

// policyPath drops trailing slashes, which the router ignores when matching
// a mounted subrouter's root.
func policyPath(p string) string {
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
