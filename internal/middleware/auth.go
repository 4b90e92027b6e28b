// Package middleware provides the HTTP middleware chain: authentication,
// rate limiting, CORS and request tracing.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/workmesh/workledger/internal/app/auth"
	apperr "github.com/workmesh/workledger/internal/errors"
	"github.com/workmesh/workledger/pkg/logger"
)

// Claims carried in an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates bearer tokens and places the actor on the request
// context.
type AuthMiddleware struct {
	secret    []byte
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates the authentication middleware. Requests to
// skipPaths pass through unauthenticated.
func NewAuthMiddleware(secret []byte, log *logger.Logger, skipPaths []string) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}
	return &AuthMiddleware{secret: secret, log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			m.respondError(w, r, apperr.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, apperr.Unauthorized("malformed Authorization header"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithContext(r.Context()).WithError(err).Warn("token validation failed")
			m.respondError(w, r, err)
			return
		}

		actor := auth.Actor{ID: claims.UserID, Role: auth.Role(claims.Role)}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthorized("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, apperr.Unauthorized("invalid token").WithCause(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	if claims.UserID == "" {
		return nil, apperr.Unauthorized("token carries no user id")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(apperr.CodeOf(err)),
		"error": err.Error(),
	})
}

// IssueToken signs an access token for the actor, primarily for tests and
// local tooling.
func IssueToken(secret []byte, actor auth.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: actor.ID,
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
