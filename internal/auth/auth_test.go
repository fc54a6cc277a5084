package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("42", "dispatcher", testSecret)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "42" {
		t.Errorf("subject = %s, want 42", claims.Subject)
	}
	if claims.Role != "dispatcher" {
		t.Errorf("role = %s, want dispatcher", claims.Role)
	}
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	token, _ := GenerateAccessToken("42", "admin", testSecret)

	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Minute)),
		},
		Role: "admin",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseAccessToken(signed, testSecret); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("secret1", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestBcryptHasherMatchesLogin(t *testing.T) {
	hash, err := BcryptHasher{}.Hash("driver-pass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !CheckPassword("driver-pass", hash) {
		t.Error("console-stored hash must verify at login")
	}
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		id := GetIdentity(c)
		return c.JSON(fiber.Map{"id": id.ID, "role": id.Role})
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "tokenwithoutscheme"},
		{"bad token", "Bearer not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode == 200 {
				t.Error("unauthenticated request must not reach the handler")
			}
		})
	}

	token, _ := GenerateAccessToken("7", "driver", testSecret)
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(testSecret))
	app.Get("/dispatch", RequireRole("admin", "dispatcher"), func(c *fiber.Ctx) error {
		return c.SendStatus(200)
	})

	driverToken, _ := GenerateAccessToken("7", "driver", testSecret)
	req := httptest.NewRequest("GET", "/dispatch", nil)
	req.Header.Set("Authorization", "Bearer "+driverToken)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode == 200 {
		t.Error("driver must not pass a dispatcher gate")
	}

	adminToken, _ := GenerateAccessToken("1", "admin", testSecret)
	req = httptest.NewRequest("GET", "/dispatch", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200 for admin", resp.StatusCode)
	}
}
