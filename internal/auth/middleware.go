package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/evw88/nifayatech/internal/admin"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	ID   string
	Role string
}

// Middleware returns a Fiber middleware that validates bearer tokens and
// attaches the Identity to the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return admin.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return admin.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return admin.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("identity", &Identity{ID: claims.Subject, Role: claims.Role})
		return c.Next()
	}
}

// RequireRole checks that the authenticated user has one of the given roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := GetIdentity(c)
		if id == nil {
			return admin.UnauthorizedError("Missing auth token")
		}
		for _, role := range roles {
			if id.Role == role {
				return c.Next()
			}
		}
		return admin.NewAppError("FORBIDDEN", 403, "Insufficient role")
	}
}

// GetIdentity extracts the Identity from a Fiber context.
func GetIdentity(c *fiber.Ctx) *Identity {
	id, _ := c.Locals("identity").(*Identity)
	return id
}
