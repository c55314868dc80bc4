package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cishan/donation-platform/models"
	"github.com/cishan/donation-platform/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAuthRouter(secret string) (*gin.Engine, *AuthRoutes) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthRoutes(secret, time.Hour, utils.NewNopLogger())
	router := gin.New()
	router.GET("/protected", auth.RequireAuth(), func(c *gin.Context) {
		ident, _ := CurrentIdentity(c)
		c.JSON(http.StatusOK, ident)
	})
	router.GET("/admin", auth.RequireAuth(), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router, auth
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"
	router, _ := newAuthRouter(secret)

	validClaims := jwt.MapClaims{
		"sub":  float64(42),
		"role": models.RoleDonor,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signTestToken(t, "other-secret", validClaims), "", http.StatusUnauthorized},
		{"valid bearer token", "Bearer " + signTestToken(t, secret, validClaims), "", http.StatusOK},
		{"token via query for websocket handshake", "", signTestToken(t, secret, validClaims), http.StatusOK},
		{
			"expired token", "Bearer " + signTestToken(t, secret, jwt.MapClaims{
				"sub": float64(42), "role": models.RoleDonor,
				"exp": time.Now().Add(-time.Hour).Unix(),
			}), "", http.StatusUnauthorized,
		},
		{
			"claims missing role", "Bearer " + signTestToken(t, secret, jwt.MapClaims{
				"sub": float64(42), "exp": time.Now().Add(time.Hour).Unix(),
			}), "", http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/protected"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	const secret = "test-secret"
	router, _ := newAuthRouter(secret)

	donorToken := signTestToken(t, secret, jwt.MapClaims{
		"sub": float64(1), "role": models.RoleDonor,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	adminToken := signTestToken(t, secret, jwt.MapClaims{
		"sub": float64(2), "role": models.RoleAdmin,
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+donorToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("donor on admin route: status = %d, want 403", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("admin on admin route: status = %d, want 200", w.Code)
	}
}

func TestIdentityCarriesOrganization(t *testing.T) {
	const secret = "test-secret"
	router, _ := newAuthRouter(secret)

	token := signTestToken(t, secret, jwt.MapClaims{
		"sub": float64(3), "role": models.RoleOrganization, "org_id": float64(7),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, fragment := range []string{`"user_id":3`, `"role":"organization"`, `"organization_id":7`} {
		if !strings.Contains(body, fragment) {
			t.Errorf("identity body missing %s: %s", fragment, body)
		}
	}
}
