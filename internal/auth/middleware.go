package auth

import (
	"github.com/gofiber/fiber/v2"
)

// DevUserHeader names the caller when token checks are disabled.
const DevUserHeader = "X-User-ID"

// Middleware resolves the caller from the Authorization header, the auth_token
// cookie or the token query parameter, in that order. With a disabled verifier
// it trusts DevUserHeader or the userId query parameter. When required is
// false a missing identity is let through and left for the handler to settle.
func Middleware(v *Verifier, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !v.Enabled() {
			userID := c.Get(DevUserHeader)
			if userID == "" {
				userID = c.Query("userId")
			}
			if userID != "" {
				c.Locals(LocalsUserKey, userID)
			} else if required {
				return unauthorized(c, ErrMissingToken)
			}
			return c.Next()
		}

		token := c.Get(fiber.HeaderAuthorization)
		if token == "" {
			token = c.Cookies(CookieName)
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" && !required {
			return c.Next()
		}

		claims, err := v.ValidateToken(token)
		if err != nil {
			return unauthorized(c, err)
		}
		c.Locals(LocalsUserKey, claims.UserID)
		return c.Next()
	}
}

// UserID returns the caller resolved by Middleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalsUserKey).(string)
	return id
}

func unauthorized(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"message": "Unauthorized",
		"error":   err.Error(),
	})
}
