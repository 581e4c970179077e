package http

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/shinyes/filterdeck/internal/models"
	"github.com/shinyes/filterdeck/internal/service"
)

const currentUserKey = "currentUser"

// AuthMiddleware resolves the bearer token to its owner. Every filter and
// group route is scoped to that user.
func AuthMiddleware(userService *service.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, present, ok := bearerToken(c)
		if !present {
			return unauthorized(c, "missing authorization")
		}
		if !ok {
			return unauthorized(c, "invalid authorization header")
		}
		user, err := userService.AuthenticateToken(c.Context(), token)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return unauthorized(c, "invalid access token")
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to authenticate",
			})
		}
		c.Locals(currentUserKey, user)
		return c.Next()
	}
}

func CurrentUser(c *fiber.Ctx) models.User {
	raw := c.Locals(currentUserKey)
	if raw == nil {
		return models.User{}
	}
	user, _ := raw.(models.User)
	return user
}

// OptionalAuthenticateToken returns nil when no Authorization header is sent.
func OptionalAuthenticateToken(c *fiber.Ctx, userService *service.UserService) (*models.User, error) {
	token, present, ok := bearerToken(c)
	if !present {
		return nil, nil
	}
	if !ok {
		return nil, sql.ErrNoRows
	}
	user, err := userService.AuthenticateToken(c.Context(), token)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func bearerToken(c *fiber.Ctx) (token string, present bool, ok bool) {
	authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if authz == "" {
		return "", false, false
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", true, false
	}
	token = strings.TrimSpace(authz[len("Bearer "):])
	return token, true, token != ""
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"message": message,
	})
}
