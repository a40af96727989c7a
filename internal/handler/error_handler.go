package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/models"
)

// ErrorHandler renders every error as {"error": message, ...fields}.
// Causes are logged, never sent.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	log := logger.With(zap.String("component", "http"))

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(models.ErrorBody(fiberErr.Message, nil))
		}

		appErr := apperror.From(err)
		status := appErr.Kind.Status()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.String("kind", appErr.Kind.String()),
		}
		if appErr.Err != nil {
			fields = append(fields, zap.Error(appErr.Err))
		}
		if status >= fiber.StatusInternalServerError {
			log.Error(appErr.Message, fields...)
		} else {
			log.Debug(appErr.Message, fields...)
		}

		return c.Status(status).JSON(models.ErrorBody(appErr.Message, appErr.Fields))
	}
}
