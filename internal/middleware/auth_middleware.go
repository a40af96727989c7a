package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	jwtPkg "github.com/sefazor/mapcraft-backend/pkg/jwt"
)

const (
	localUserID    = "userID"
	localUserEmail = "userEmail"
)

// AuthMiddleware accepts identity-provider access tokens and stores the
// caller's id and email in the request locals.
func AuthMiddleware(validator *jwtPkg.Validator, logger *zap.Logger) fiber.Handler {
	log := logger.With(zap.String("component", "auth"))

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return apperror.Authentication("Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return apperror.Authentication("Invalid authorization header format")
		}

		claims, err := validator.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			log.Debug("token rejected", zap.Error(err))
			return apperror.Authentication("Invalid token")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return apperror.Authentication("Invalid user ID in token")
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserEmail, claims.Email)

		return c.Next()
	}
}

// CurrentUser returns what AuthMiddleware stored.
func CurrentUser(c *fiber.Ctx) (uuid.UUID, string, bool) {
	userID, ok := c.Locals(localUserID).(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	email, _ := c.Locals(localUserEmail).(string)
	return userID, email, true
}
