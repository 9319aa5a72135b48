package server

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/pairmatch/ledger/internal/app"
	"github.com/pairmatch/ledger/internal/auth"
	"github.com/pairmatch/ledger/internal/identity"
	"github.com/pairmatch/ledger/internal/logger"
)

// localsCallerKey is where the authenticated caller identity lives in the
// request context.
const localsCallerKey = "caller"

// Caller returns the authenticated identity set by AuthRequired.
func Caller(c *fiber.Ctx) (identity.Key, bool) {
	key, ok := c.Locals(localsCallerKey).(identity.Key)
	return key, ok
}

// AuthRequired enforces a bearer token on protected routes and stores the
// caller identity in ctx locals.
func AuthRequired(appCtx *app.AppContext) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authorization header required",
			})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}

		caller, err := auth.Parse(parts[1], appCtx.Config.Auth.JWTSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(localsCallerKey, caller)
		return c.Next()
	}
}

// RequestLogger tags every request with a uuid and logs method, path,
// status, and latency through a request-scoped child logger.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals("request_id", reqID)
		c.Set("X-Request-ID", reqID)

		start := time.Now()
		err := c.Next()

		logger.Request(reqID).Debug("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String(),
		)
		return err
	}
}
