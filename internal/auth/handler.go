package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/evw88/nifayatech/internal/admin"
	"github.com/evw88/nifayatech/internal/store"
)

// Handler serves the authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return admin.UnauthorizedError("Username and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByUsername(ctx, body.Username)
	if err != nil {
		return admin.UnauthorizedError("Invalid username or password")
	}

	if status, _ := user["status"].(string); status != "active" {
		return admin.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return admin.UnauthorizedError("Invalid username or password")
	}

	role, _ := user["role"].(string)
	pair, err := h.generateTokenPair(ctx, idString(user["id"]), role)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. The presented token is deleted and
// replaced, so each refresh token is single-use.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return admin.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`SELECT rt.id, rt.user_id, rt.expires_at, u.role, u.status
FROM auth_refresh_tokens rt
JOIN users u ON u.id = rt.user_id
WHERE rt.token = %s`, pb.Add(body.RefreshToken))

	row, err := store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return admin.UnauthorizedError("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		h.deleteToken(ctx, body.RefreshToken)
		return admin.UnauthorizedError("Refresh token expired")
	}

	if status, _ := row["status"].(string); status != "active" {
		return admin.UnauthorizedError("Account is disabled")
	}

	h.deleteToken(ctx, body.RefreshToken)

	role, _ := row["role"].(string)
	pair, err := h.generateTokenPair(ctx, idString(row["user_id"]), role)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return admin.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return admin.UnauthorizedError("Refresh token is required")
	}

	h.deleteToken(c.Context(), body.RefreshToken)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

// --- helpers ---

func (h *Handler) findUserByUsername(ctx context.Context, username string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"SELECT id, username, password, role, status FROM users WHERE username = %s",
		pb.Add(username))
	return store.QueryRow(ctx, h.store.DB, sqlStr, pb.Params()...)
}

func (h *Handler) generateTokenPair(ctx context.Context, userID, role string) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(userID, role, h.jwtSecret)
	if err != nil {
		return nil, admin.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO auth_refresh_tokens (user_id, token, expires_at) VALUES (%s, %s, %s)",
		pb.Add(userID), pb.Add(refreshToken), pb.Add(expiresAt))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return nil, admin.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (h *Handler) deleteToken(ctx context.Context, token string) {
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := "DELETE FROM auth_refresh_tokens WHERE token = " + pb.Add(token)
	_, _ = store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...)
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int64:
		return fmt.Sprintf("%d", id)
	case float64:
		return fmt.Sprintf("%d", int64(id))
	default:
		return fmt.Sprintf("%v", v)
	}
}
