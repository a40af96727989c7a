package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

const ProviderStripe = "stripe"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

type StripeService struct {
	cfg      StripeConfig
	sessions *session.Client
}

func NewStripeService(cfg StripeConfig) *StripeService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	return &StripeService{
		cfg: cfg,
		sessions: &session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}
}

func (s *StripeService) Name() string { return ProviderStripe }

func (s *StripeService) SignatureHeader() string { return "Stripe-Signature" }

func (s *StripeService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if s.cfg.SecretKey == "" {
		return nil, ErrMissingCredentials
	}

	mode := stripe.CheckoutSessionModePayment
	if req.Subscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.VariantID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.RedirectURL),
	}
	params.Context = ctx

	if req.CancelURL != "" {
		params.CancelURL = stripe.String(req.CancelURL)
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.UserID != "" {
		params.ClientReferenceID = stripe.String(req.UserID)
		params.AddMetadata("user_id", req.UserID)
	}
	if req.DiscountCode != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(req.DiscountCode)},
		}
	}
	params.AddMetadata("variant_id", req.VariantID)

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeService) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	var event stripe.Event
	if s.cfg.WebhookSecret != "" {
		var err error
		event, err = webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
			webhook.ConstructEventOptions{
				IgnoreAPIVersionMismatch: true,
			},
		)
		if err != nil {
			if isStripeSignatureError(err) {
				return nil, ErrInvalidSignature
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	} else if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := &models.WebhookEvent{
		Kind:     models.EventUnhandled,
		Name:     string(event.Type),
		Provider: ProviderStripe,
		ObjectID: event.ID,
	}
	if event.Data == nil {
		return out, nil
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		// delayed payment methods complete the session before money moves;
		// async_payment_succeeded follows once it does
		if !sessionPaid(cs.PaymentStatus) {
			return out, nil
		}
		out.Kind = models.EventOrderCreated
		out.ObjectID = cs.ID
		out.OrderID = cs.ID
		out.Email = cs.CustomerEmail
		if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
			out.Email = cs.CustomerDetails.Email
		}
		out.Amount = cs.AmountTotal
		out.Status = string(cs.PaymentStatus)
		out.VariantID = cs.Metadata["variant_id"]

	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		out.Kind = models.EventSubscriptionPaymentSuccess
		out.ObjectID = inv.ID
		out.Email = inv.CustomerEmail
		out.Amount = inv.AmountPaid
		out.Status = string(inv.Status)
	}

	return out, nil
}

func sessionPaid(status stripe.CheckoutSessionPaymentStatus) bool {
	return status == stripe.CheckoutSessionPaymentStatusPaid ||
		status == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

func isStripeSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
