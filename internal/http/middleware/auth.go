package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
	"github.com/wolfman30/pro-marketplace/internal/domain"
	"github.com/wolfman30/pro-marketplace/internal/http/respond"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// Claims is the HS256 token payload: sub carries the actor id.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role"`
}

func unauthorized(w http.ResponseWriter, message string) {
	respond.JSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]string{"code": "unauthenticated", "message": message},
	})
}

// Authenticate validates the bearer token and stores the caller as a
// domain.Actor in the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				unauthorized(w, "authentication not configured")
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing bearer token")
				return
			}
			claims := &Claims{}
			token, err := parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}
			id, err := uuid.Parse(claims.Subject)
			if err != nil || !claims.Role.Valid() {
				unauthorized(w, "token subject or role invalid")
				return
			}
			ctx := domain.WithActor(r.Context(), domain.Actor{ID: id, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects actors whose role is not listed.
func RequireRole(logger *logging.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := respond.Actor(r)
			if err != nil {
				respond.Error(w, logger, err)
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				respond.Error(w, logger, apperr.Forbidden("insufficient_role", "role %s may not access this resource", actor.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IssueToken signs a token for actor. Used by cmd/seed and tests.
func IssueToken(secret string, actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: actor.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
