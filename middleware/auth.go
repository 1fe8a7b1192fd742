// middleware/auth.go
package middleware

import (
	"strings"

	"competition-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const principalKey = "principal"

// UserContextMiddleware turns the identity headers set by the Gateway into a
// services.Principal. Routes behind it require X-User-ID.
func UserContextMiddleware(adminRoles []string, log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.WithField("path", c.Path()).Warn("❌ [USER_CTX] X-User-ID required but missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
				"code":  "unauthorized",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		principal := services.PrincipalFromRoles(userID, roles, adminRoles)
		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		c.Locals(principalKey, principal)

		log.WithFields(logrus.Fields{
			"user_id": userID,
			"roles":   roles,
			"path":    c.Path(),
		}).Debug("👤 [USER_CTX] user context attached")

		return c.Next()
	}
}

// PrincipalFrom returns the principal attached by UserContextMiddleware, or
// an actor without capabilities.
func PrincipalFrom(c *fiber.Ctx) services.Principal {
	if p, ok := c.Locals(principalKey).(services.Principal); ok {
		return p
	}
	return services.Principal{}
}
