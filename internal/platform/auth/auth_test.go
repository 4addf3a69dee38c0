package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, subject, email string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestParseTokenRoundTrip(t *testing.T) {
	signed := signToken(t, testSecret, "user-1", "u@example.com", time.Hour)

	uc, err := ParseToken(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uc.UserID)
	assert.Equal(t, "u@example.com", uc.Email)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	signed := signToken(t, testSecret, "user-1", "", time.Hour)

	_, err := ParseToken(signed, []byte("other-secret"))
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	signed := signToken(t, testSecret, "user-1", "", -time.Minute)

	_, err := ParseToken(signed, testSecret)
	require.Error(t, err)
}

func TestParseTokenRequiresSubject(t *testing.T) {
	signed := signToken(t, testSecret, "", "", time.Hour)

	_, err := ParseToken(signed, testSecret)
	require.Error(t, err)
}

func TestUserContextRoundTrip(t *testing.T) {
	ctx := WithUserContext(context.Background(), &UserContext{UserID: "user-1"})

	uc, err := GetUserContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uc.UserID)

	_, err = GetUserContext(context.Background())
	assert.ErrorIs(t, err, ErrNoUserContext)
}

func TestMiddlewareAttachesUser(t *testing.T) {
	var got *UserContext
	handler := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUserContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-1", "", time.Hour))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
}

func TestMiddlewareAllowsAnonymous(t *testing.T) {
	var err error
	handler := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err = GetUserContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.ErrorIs(t, err, ErrNoUserContext)
}
