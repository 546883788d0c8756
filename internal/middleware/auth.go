// Package middleware provides authentication, logging, metrics and rate limiting middleware.
package middleware

import (
	"context"
	"strings"

	"folio/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals populated by the auth middleware.
const (
	LocalUserID   = "userID"
	LocalIdentity = "identity"
	LocalTokenJTI = "tokenJTI"
)

// TokenResolver maps an opaque session token to the caller's identity.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*models.Identity, string, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthRequired rejects requests without a valid session with 401.
func AuthRequired(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		identity, jti, err := resolver.ResolveToken(c.UserContext(), token)
		if err != nil || identity == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		setIdentity(c, identity, jti)
		return c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present and never rejects.
func OptionalAuth(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := BearerToken(c); token != "" {
			if identity, jti, err := resolver.ResolveToken(c.UserContext(), token); err == nil && identity != nil {
				setIdentity(c, identity, jti)
			}
		}
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, identity *models.Identity, jti string) {
	c.Locals(LocalUserID, identity.ID)
	c.Locals(LocalIdentity, identity)
	c.Locals(LocalTokenJTI, jti)
	// Sync to UserContext for logging and downstream services
	ctx := context.WithValue(c.UserContext(), UserIDKey, identity.ID)
	c.SetUserContext(ctx)
}

// IdentityFrom returns the identity stored by AuthRequired, if any.
func IdentityFrom(c *fiber.Ctx) (*models.Identity, bool) {
	identity, ok := c.Locals(LocalIdentity).(*models.Identity)
	return identity, ok && identity != nil
}
