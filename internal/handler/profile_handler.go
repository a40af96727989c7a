package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/middleware"
	"github.com/sefazor/mapcraft-backend/internal/models"
)

type ProfileProvider interface {
	GetProfile(ctx context.Context, userID uuid.UUID, email string) (*models.ProfileResponse, error)
}

type ProfileHandler struct {
	profiles ProfileProvider
}

func NewProfileHandler(profiles ProfileProvider) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
	}
}

func (h *ProfileHandler) GetMyProfile(c *fiber.Ctx) error {
	userID, email, ok := middleware.CurrentUser(c)
	if !ok {
		return apperror.Authentication("User not authenticated")
	}

	profile, err := h.profiles.GetProfile(c.UserContext(), userID, email)
	if err != nil {
		return err
	}

	return c.JSON(models.SuccessResponse(profile, ""))
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
