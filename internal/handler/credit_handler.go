package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/pkg/utils"
)

type CreditConsumer interface {
	ConsumeCredit(ctx context.Context, req models.ConsumeCreditRequest) (*models.ConsumeCreditResponse, error)
}

type CreditHandler struct {
	credits   CreditConsumer
	validator *utils.Validator
}

func NewCreditHandler(credits CreditConsumer, validator *utils.Validator) *CreditHandler {
	return &CreditHandler{
		credits:   credits,
		validator: validator,
	}
}

func (h *CreditHandler) ConsumeCredit(c *fiber.Ctx) error {
	var req models.ConsumeCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.Validation("Invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return apperror.Validation(utils.Message(err))
	}

	resp, err := h.credits.ConsumeCredit(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}
