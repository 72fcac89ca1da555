// Package middleware provides HTTP middleware shared by every server
// entrypoint: actor attribution and request metrics.
package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// actorHeader names the development-mode identity header honored when no
// token secret is configured.
const actorHeader = "X-Actor-ID"

type actorContextKey struct{}

// WithActorID stores the authenticated actor's principal ID on the context
// for downstream handlers.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorIDFromContext retrieves the authenticated actor's principal ID from
// the context.
func ActorIDFromContext(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(actorContextKey{}).(string)
	return actorID, ok && actorID != ""
}

// NewActorMiddleware resolves the acting principal for each request.
//
// With a secret configured, the Authorization bearer token is verified as
// an HS256 JWT and the sub claim becomes the actor ID. Requests without an
// Authorization header pass through unattributed; handlers that need an
// actor reject those themselves. A header that is present but fails
// verification is a hard 401.
//
// With an empty secret the server runs in development mode and trusts the
// X-Actor-ID header instead. Token issuance is not handled here.
func NewActorMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				if actorID := r.Header.Get(actorHeader); actorID != "" {
					r = r.WithContext(WithActorID(r.Context(), actorID))
				}
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				http.Error(w, "authorization header must use the Bearer scheme", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil {
				log.Printf("WARNING: rejected bearer token for %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "invalid token: missing subject", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActorID(r.Context(), subject)))
		})
	}
}
