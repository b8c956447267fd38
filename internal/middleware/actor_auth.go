package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ctxActorKey contextKey = "actor"

// ActorAuth authenticates requests with an HS256 JWT issued by the identity
// service. The token subject is the actor's user id; role (brand, creator,
// admin) rides in the "role" claim. Session issuance itself is external.
func ActorAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeAuthError(w, r, "missing or malformed Authorization header")
				return
			}
			actorID, role, err := parseActorToken(raw, secret)
			if err != nil {
				writeAuthError(w, r, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxActorKey, Actor{ID: actorID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// ActorFromCtx returns the authenticated actor; ok is false on
// unauthenticated requests.
func ActorFromCtx(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxActorKey).(Actor)
	return a, ok
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, a)
}

func parseActorToken(raw string, secret []byte) (uuid.UUID, string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, "", err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, "", err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("subject is not a user id: %w", err)
	}
	role, _ := claims["role"].(string)
	return id, role, nil
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"ok":false,"error":{"code":"unauthorized","message":%q},"requestId":%q}`,
		msg, RequestIDFromCtx(r.Context()))
}
