package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type contextKey string

const UserIDKey contextKey = "user_id"

const accessTokenCookie = "access_token"

// RequireAuth resolves the principal from the access_token cookie or a Bearer
// header and stores it under UserIDKey. Handlers behind it never see
// credentials.
func RequireAuth(verifier ports.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "missing credentials")
				return
			}

			principalID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeErrorCode(w, http.StatusUnauthorized, codeUnauthorized, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principalID)))
		})
	}
}

func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, UserIDKey, principalID)
}

func principalFrom(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(UserIDKey).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(accessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
