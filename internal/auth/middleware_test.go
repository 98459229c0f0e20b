package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestRouter(audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", JWTMiddleware(testSecret, audience), func(c *gin.Context) {
		sessionID, ok := GetSessionID(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, sessionID)
	})
	return router
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func unsignedToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}
	return signed
}

func TestValidSessionID(t *testing.T) {
	valid := []string{"s1", "user-123", "auth0:abc_DEF", "me@example"}
	for _, id := range valid {
		if !ValidSessionID(id) {
			t.Fatalf("expected %q to be valid", id)
		}
	}
	invalid := []string{"", "a.b", "a*b", "a b", "a#", strings.Repeat("x", 129)}
	for _, id := range invalid {
		if ValidSessionID(id) {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}

func TestJWTMiddleware(t *testing.T) {
	expires := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name     string
		audience string
		header   string
		wantCode int
		wantBody string
	}{
		{
			name:     "missing header",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "not bearer",
			header:   "Basic abc",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + signToken(t, "other", jwt.RegisteredClaims{Subject: "s1", ExpiresAt: expires}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "expired",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "s1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "missing subject",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{ExpiresAt: expires}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no expiry",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "s1"}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "subject with routing key separator",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "lookup.state.s1", ExpiresAt: expires}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "subject with wildcard",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "#", ExpiresAt: expires}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "none algorithm",
			header:   "Bearer " + unsignedToken(t, jwt.RegisteredClaims{Subject: "s1", ExpiresAt: expires}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "audience mismatch",
			audience: "aerofindr",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "s1", Audience: jwt.ClaimStrings{"other"}, ExpiresAt: expires}),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "valid",
			audience: "aerofindr",
			header:   "Bearer " + signToken(t, testSecret, jwt.RegisteredClaims{Subject: "session-1", Audience: jwt.ClaimStrings{"aerofindr"}, ExpiresAt: expires}),
			wantCode: http.StatusOK,
			wantBody: "session-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.audience)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			if resp.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d (%s)", tt.wantCode, resp.Code, resp.Body.String())
			}
			if tt.wantBody != "" && resp.Body.String() != tt.wantBody {
				t.Fatalf("expected body %q, got %q", tt.wantBody, resp.Body.String())
			}
		})
	}
}
