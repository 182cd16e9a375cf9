package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/accounts/internal/auth"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" if the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// Authenticate verifies a bearer token when one is sent and attaches the
// resulting identity to the request context. Requests without a valid token
// continue anonymously; handlers decide what anonymous callers may do.
func Authenticate(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := BearerToken(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.Verify(r.Context(), tok)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
					logger.DebugContext(r.Context(), "rejected bearer token", "path", r.URL.Path)
				} else {
					logger.WarnContext(r.Context(), "verify bearer token", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}
