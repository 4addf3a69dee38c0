// Package auth extracts the acting user from bearer tokens. The user id is
// placed on the request context; handlers pass it explicitly into services,
// which never read identity from ambient state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// UserContext identifies the authenticated caller.
type UserContext struct {
	UserID string
	Email  string
}

type userContextKey struct{}

// ErrNoUserContext is returned when the request carried no valid token.
var ErrNoUserContext = errors.New("no authenticated user on context")

// WithUserContext returns ctx with the user attached.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, uc)
}

// GetUserContext returns the authenticated user, or ErrNoUserContext.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(userContextKey{}).(*UserContext)
	if !ok || uc == nil || uc.UserID == "" {
		return nil, ErrNoUserContext
	}
	return uc, nil
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns the user it identifies.
func ParseToken(tokenString string, secret []byte) (*UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	c, ok := token.Claims.(*claims)
	if !ok || c.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &UserContext{UserID: c.Subject, Email: c.Email}, nil
}

// Middleware parses the Authorization header when present and attaches the
// user to the context. Requests without a valid token proceed anonymously;
// handlers that need an actor reject them individually.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(header, "Bearer "); ok && len(secret) > 0 {
				if uc, err := ParseToken(token, secret); err == nil {
					r = r.WithContext(WithUserContext(r.Context(), uc))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
