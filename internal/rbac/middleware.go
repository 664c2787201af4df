package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/innkeeper-pms/innkeeper/internal/access"
	"github.com/innkeeper-pms/innkeeper/internal/platform/httpx"
	"github.com/innkeeper-pms/innkeeper/internal/shared"
)

// SubjectLoader resolves the authorization subject for a user id. It returns
// nil when the user is unknown or disabled.
type SubjectLoader interface {
	LoadSubject(ctx context.Context, userID int64) (*access.Subject, error)
}

// Middleware wires permission checks for HTTP handlers. The subject is loaded
// fresh on every request so role and grant changes apply immediately.
type Middleware struct {
	Evaluator *access.Evaluator
	Subjects  SubjectLoader
	Logger    *slog.Logger
}

// Authenticated loads the session subject into the request context and
// rejects anonymous requests.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := m.subject(w, r)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
		})
	}
}

// Require ensures the current subject may perform action on module.
func (m Middleware) Require(module string, action access.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := m.subject(w, r)
			if !ok {
				return
			}
			if !m.Evaluator.HasPermission(subject, module, action) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
		})
	}
}

func (m Middleware) subject(w http.ResponseWriter, r *http.Request) (*access.Subject, bool) {
	if s := SubjectFromContext(r.Context()); s != nil {
		return s, true
	}
	userID := shared.UserIDFromContext(r.Context())
	if userID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	subject, err := m.Subjects.LoadSubject(r.Context(), userID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac load subject", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return nil, false
	}
	if subject == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return nil, false
	}
	return subject, true
}

type subjectContextKey struct{}

// ContextWithSubject stores the authorization subject on the context.
func ContextWithSubject(ctx context.Context, s *access.Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, s)
}

// SubjectFromContext returns the subject loaded by Middleware, if any.
func SubjectFromContext(ctx context.Context) *access.Subject {
	s, _ := ctx.Value(subjectContextKey{}).(*access.Subject)
	return s
}
