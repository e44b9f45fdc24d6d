package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tschelli/lead-lander-sub001/common/httputil"
	"github.com/tschelli/lead-lander-sub001/common/tokens"
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*tokens.Claims, error)
}

type Middleware struct {
	validator TokenValidator
}

func NewMiddleware(validator TokenValidator) *Middleware {
	return &Middleware{validator: validator}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's Principal in the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httputil.WriteCodedError(w, http.StatusUnauthorized, "unauthenticated", "missing authorization header")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.WriteCodedError(w, http.StatusUnauthorized, "unauthenticated", "invalid authorization header")
			return
		}

		claims, err := m.validator.Validate(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, tokens.ErrExpiredToken) {
				msg = "token expired"
			}
			httputil.WriteCodedError(w, http.StatusUnauthorized, "unauthenticated", msg)
			return
		}

		ctx := WithPrincipal(r.Context(), FromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
