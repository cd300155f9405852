package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-value"

func signToken(t *testing.T, subject string, audience ...string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  audience,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newRouter(audience string, opts ...Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTMiddleware(testSecret, audience, opts...), func(c *gin.Context) {
		userID, _ := GetUserID(c.Request.Context())
		c.String(http.StatusOK, userID)
	})
	return r
}

func TestJWTMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		audience string
		header   string
		status   int
		body     string
	}{
		{name: "valid token", header: "Bearer " + signToken(t, "user-1"), status: http.StatusOK, body: "user-1"},
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
		{name: "missing subject", header: "Bearer " + signToken(t, ""), status: http.StatusUnauthorized},
		{name: "audience match", audience: "skin-doctor", header: "Bearer " + signToken(t, "user-2", "skin-doctor"), status: http.StatusOK, body: "user-2"},
		{name: "audience mismatch", audience: "skin-doctor", header: "Bearer " + signToken(t, "user-2", "other"), status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			newRouter(tt.audience).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d (%s)", tt.status, rec.Code, rec.Body.String())
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestJWTMiddlewareQueryToken(t *testing.T) {
	target := "/me?" + QueryTokenParam + "=" + signToken(t, "user-3")

	rec := httptest.NewRecorder()
	newRouter("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("query token must be ignored by default, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	newRouter("", Options{AllowQueryToken: true}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "user-3" {
		t.Fatalf("expected query token to authenticate, got %d %s", rec.Code, rec.Body.String())
	}
}
