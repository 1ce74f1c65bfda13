package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestJWT_RoundTrip(t *testing.T) {
	req := require.New(t)
	tok, err := SignJWT(secret, 7, "alice", time.Minute)
	req.NoError(err)

	claims, err := ParseJWT(secret, tok)
	req.NoError(err)
	req.Equal(int64(7), claims.UserID)
	req.Equal("alice", claims.Username)
}

func TestParseJWT_Rejects(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		tok, err := SignJWT(secret, 7, "alice", time.Minute)
		require.NoError(t, err)
		_, err = ParseJWT([]byte("other"), tok)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		tok, err := SignJWT(secret, 7, "alice", -time.Minute)
		require.NoError(t, err)
		_, err = ParseJWT(secret, tok)
		require.Error(t, err)
	})

	t.Run("no user id", func(t *testing.T) {
		tok, err := SignJWT(secret, 0, "nobody", time.Minute)
		require.NoError(t, err)
		_, err = ParseJWT(secret, tok)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
	})

	t.Run("non HMAC algorithm", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 7}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = ParseJWT(secret, tok)
		require.Error(t, err)
	})
}

func newProtected() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireJWT(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "username": c.GetString(CtxUsernameKey)})
	})
	return r
}

func TestRequireJWT(t *testing.T) {
	r := newProtected()
	valid, err := SignJWT(secret, 9, "bob", time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"missing token", func(*http.Request) {}, http.StatusUnauthorized},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusForbidden},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: valid}) }, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			httpReq := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(httpReq)
			r.ServeHTTP(w, httpReq)

			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				require.JSONEq(t, `{"id":9,"username":"bob"}`, w.Body.String())
			} else {
				require.Empty(t, w.Body.String())
			}
		})
	}
}
