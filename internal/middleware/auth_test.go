package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"custodia/internal/config"
	"custodia/internal/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret-key")
	config.Load()
	os.Exit(m.Run())
}

func testUser(role models.UserRole) *models.User {
	u := &models.User{
		Email: "advisor@custodia.test",
		Role:  role,
	}
	u.ID = "0192aef1-0000-7000-8000-000000000001"
	return u
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/clients", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("userID"),
			"role":    c.GetString("role"),
		})
	})
	r.POST("/clients", RequireWriteAccess(), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"status": "created"})
	})
	return r
}

func doAuthRequest(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("accepts_valid_access_token", func(t *testing.T) {
		token, err := GenerateAccessToken(testUser(models.RoleAdmin))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		rec := doAuthRequest(authRouter(), http.MethodGet, "/clients", token)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		body := parseBody(t, rec)
		if body["user_id"] != "0192aef1-0000-7000-8000-000000000001" {
			t.Errorf("expected user id in context, got %v", body["user_id"])
		}
		if body["role"] != string(models.RoleAdmin) {
			t.Errorf("expected role in context, got %v", body["role"])
		}
	})

	t.Run("rejects_missing_header", func(t *testing.T) {
		rec := doAuthRequest(authRouter(), http.MethodGet, "/clients", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("rejects_malformed_header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/clients", http.NoBody)
		req.Header.Set("Authorization", "Token abc123")
		rec := httptest.NewRecorder()
		authRouter().ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("rejects_garbage_token", func(t *testing.T) {
		rec := doAuthRequest(authRouter(), http.MethodGet, "/clients", "not.a.jwt")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("rejects_refresh_token_as_access_token", func(t *testing.T) {
		token, err := GenerateRefreshToken(testUser(models.RoleAdmin))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		rec := doAuthRequest(authRouter(), http.MethodGet, "/clients", token)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestRequireWriteAccess(t *testing.T) {
	t.Run("admin_can_write", func(t *testing.T) {
		token, err := GenerateAccessToken(testUser(models.RoleAdmin))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		rec := doAuthRequest(authRouter(), http.MethodPost, "/clients", token)

		if rec.Code != http.StatusCreated {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
		}
	})

	t.Run("read_only_user_is_rejected", func(t *testing.T) {
		token, err := GenerateAccessToken(testUser(models.RoleReadOnly))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		rec := doAuthRequest(authRouter(), http.MethodPost, "/clients", token)

		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("read_only_user_can_still_read", func(t *testing.T) {
		token, err := GenerateAccessToken(testUser(models.RoleReadOnly))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		rec := doAuthRequest(authRouter(), http.MethodGet, "/clients", token)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestValidateRefreshToken(t *testing.T) {
	t.Run("round_trips_refresh_claims", func(t *testing.T) {
		user := testUser(models.RoleAdmin)
		token, err := GenerateRefreshToken(user)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		claims, err := ValidateRefreshToken(token)
		if err != nil {
			t.Fatalf("expected valid refresh token, got %v", err)
		}
		if claims.UserID != user.ID {
			t.Errorf("expected user id %s, got %s", user.ID, claims.UserID)
		}
		if claims.TokenType != "refresh" {
			t.Errorf("expected refresh token type, got %s", claims.TokenType)
		}
	})

	t.Run("rejects_access_token", func(t *testing.T) {
		token, err := GenerateAccessToken(testUser(models.RoleAdmin))
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		if _, err := ValidateRefreshToken(token); err == nil {
			t.Error("expected access token to be rejected as refresh token")
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Run("is_deterministic_and_hex_encoded", func(t *testing.T) {
		first := HashToken("some-refresh-token")
		second := HashToken("some-refresh-token")

		if first != second {
			t.Error("expected identical digests for identical input")
		}
		if len(first) != 64 {
			t.Errorf("expected 64 hex chars, got %d", len(first))
		}
		if first == HashToken("other-token") {
			t.Error("expected different digests for different input")
		}
	})
}
