package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/middleware"
	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/internal/service"
	"github.com/sefazor/mapcraft-backend/pkg/utils"
)

type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req models.CheckoutRequest, country string) (*models.CheckoutResponse, error)
}

type WebhookProcessor interface {
	SignatureHeader() string
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

type PaymentHistoryProvider interface {
	GetPaymentHistory(ctx context.Context, userID uuid.UUID) ([]models.Payment, error)
}

type PaymentHandler struct {
	checkout  CheckoutCreator
	webhooks  WebhookProcessor
	history   PaymentHistoryProvider
	validator *utils.Validator
}

func NewPaymentHandler(checkout CheckoutCreator, webhooks WebhookProcessor, history PaymentHistoryProvider, validator *utils.Validator) *PaymentHandler {
	return &PaymentHandler{
		checkout:  checkout,
		webhooks:  webhooks,
		history:   history,
		validator: validator,
	}
}

// requestCountry reads the edge geolocation headers. Values that are not
// an ISO country code are dropped.
func (h *PaymentHandler) requestCountry(c *fiber.Ctx) string {
	country := c.Get("X-Vercel-IP-Country")
	if country == "" {
		country = c.Get("CF-IPCountry")
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if err := h.validator.Var(country, "omitempty,country_code"); err != nil {
		return ""
	}
	return country
}

func (h *PaymentHandler) CreateCheckout(c *fiber.Ctx) error {
	var req models.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return apperror.Validation("Invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return apperror.Validation(utils.Message(err))
	}

	resp, err := h.checkout.CreateCheckout(c.UserContext(), req, h.requestCountry(c))
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get(h.webhooks.SignatureHeader())

	result, err := h.webhooks.HandleWebhook(c.UserContext(), payload, signature)
	if err != nil {
		return err
	}

	if result.Outcome == service.OutcomeApplied {
		return c.JSON(fiber.Map{"success": true})
	}
	return c.JSON(fiber.Map{"message": "Event received"})
}

func (h *PaymentHandler) GetPaymentHistory(c *fiber.Ctx) error {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		return apperror.Authentication("User not authenticated")
	}

	payments, err := h.history.GetPaymentHistory(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(models.SuccessResponse(payments, ""))
}
