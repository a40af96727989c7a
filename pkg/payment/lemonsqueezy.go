package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NdoleStudio/lemonsqueezy-go"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

const ProviderLemonSqueezy = "lemonsqueezy"

// ErrInvalidVariant is returned when a store or variant id is not the
// numeric id Lemon Squeezy expects.
var ErrInvalidVariant = errors.New("invalid lemon squeezy store or variant id")

type LemonSqueezyConfig struct {
	APIKey        string
	StoreID       string
	WebhookSecret string
	// BaseURL overrides the API host, without the /v1 suffix.
	BaseURL string
	Timeout time.Duration
}

type LemonSqueezy struct {
	cfg    LemonSqueezyConfig
	client *lemonsqueezy.Client
}

func NewLemonSqueezy(cfg LemonSqueezyConfig) *LemonSqueezy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	opts := []lemonsqueezy.Option{
		lemonsqueezy.WithAPIKey(cfg.APIKey),
		lemonsqueezy.WithSigningSecret(cfg.WebhookSecret),
		lemonsqueezy.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lemonsqueezy.WithBaseURL(cfg.BaseURL))
	}
	return &LemonSqueezy{
		cfg:    cfg,
		client: lemonsqueezy.New(opts...),
	}
}

func (p *LemonSqueezy) Name() string { return ProviderLemonSqueezy }

func (p *LemonSqueezy) SignatureHeader() string { return "X-Signature" }

func (p *LemonSqueezy) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if p.cfg.APIKey == "" || p.cfg.StoreID == "" {
		return nil, ErrMissingCredentials
	}
	storeID, err := strconv.Atoi(p.cfg.StoreID)
	if err != nil {
		return nil, fmt.Errorf("%w: store %q", ErrInvalidVariant, p.cfg.StoreID)
	}
	variantID, err := strconv.Atoi(req.VariantID)
	if err != nil {
		return nil, fmt.Errorf("%w: variant %q", ErrInvalidVariant, req.VariantID)
	}

	params := &lemonsqueezy.CheckoutCreateParams{
		StoreID:   storeID,
		VariantID: variantID,
	}
	if req.DiscountCode != "" {
		code := req.DiscountCode
		params.DiscountCode = &code
	}
	if req.UserID != "" {
		params.CustomData = map[string]any{"user_id": req.UserID}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	checkout, resp, err := p.client.Checkouts.Create(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("create checkout: %w", ctxErr)
		}
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	if resp != nil && resp.HTTPResponse != nil && resp.HTTPResponse.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("create checkout: unexpected status %d", resp.HTTPResponse.StatusCode)
	}
	if checkout == nil || checkout.Data.Attributes.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{ID: checkout.Data.ID, URL: checkout.Data.Attributes.URL}, nil
}

type lsWebhook struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			UserEmail      string      `json:"user_email"`
			Total          int64       `json:"total"`
			Status         string      `json:"status"`
			OrderID        json.Number `json:"order_id"`
			VariantID      json.Number `json:"variant_id"`
			FirstOrderItem *struct {
				OrderID   json.Number `json:"order_id"`
				VariantID json.Number `json:"variant_id"`
			} `json:"first_order_item"`
		} `json:"attributes"`
	} `json:"data"`
}

func (p *LemonSqueezy) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if p.cfg.WebhookSecret != "" && !p.client.Webhooks.Verify(context.Background(), strings.TrimSpace(signature), payload) {
		return nil, ErrInvalidSignature
	}

	var envelope lsWebhook
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	attrs := envelope.Data.Attributes
	event := &models.WebhookEvent{
		Kind:     kindFromName(envelope.Meta.EventName),
		Name:     envelope.Meta.EventName,
		Provider: ProviderLemonSqueezy,
		ObjectID: envelope.Data.ID,
		Email:    strings.TrimSpace(attrs.UserEmail),
		Amount:   attrs.Total,
		Status:   attrs.Status,
	}

	event.OrderID = attrs.OrderID.String()
	event.VariantID = attrs.VariantID.String()
	if item := attrs.FirstOrderItem; item != nil {
		if event.OrderID == "" {
			event.OrderID = item.OrderID.String()
		}
		if event.VariantID == "" {
			event.VariantID = item.VariantID.String()
		}
	}
	if event.Kind == models.EventOrderCreated && event.OrderID == "" {
		event.OrderID = envelope.Data.ID
	}

	return event, nil
}
