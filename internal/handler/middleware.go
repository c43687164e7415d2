package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/flagwise/auth-service/internal/service"
)

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal attached by the
// Authenticate middleware.
func PrincipalFromContext(ctx context.Context) (*service.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*service.Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	tok := header[len(prefix):]
	return tok, tok != ""
}

// Authenticate verifies the Authorization header and attaches the resolved
// principal to the request context. Every protected route passes through
// here.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			h.writeError(w, service.ErrMissingToken)
			return
		}

		tok, ok := bearerToken(header)
		if !ok {
			h.writeError(w, service.ErrMissingToken)
			return
		}

		principal, err := h.authorizer.Authenticate(r.Context(), tok)
		if err != nil {
			h.writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects non-admin principals.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok || !principal.IsAdmin() {
			h.writeError(w, service.ErrInsufficientPermission)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission passes when the principal holds the named permission or
// the top role.
func (h *Handler) RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.IsAdmin() || !principal.HasPermission(perm) {
				h.writeError(w, service.ErrInsufficientPermission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole passes when the principal's role is one of allowed.
func (h *Handler) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.HasRole(allowed...) {
				h.writeError(w, service.ErrInsufficientPermission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
