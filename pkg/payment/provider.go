// Package payment talks to the hosted checkout providers and turns their
// signed webhook callbacks into normalized events.
package payment

import (
	"context"
	"errors"
	"net"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

var (
	ErrMissingCredentials = errors.New("payment provider credentials are not configured")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrNoCheckoutURL      = errors.New("payment provider returned no checkout url")
)

type CheckoutRequest struct {
	VariantID    string
	Email        string
	Name         string
	UserID       string
	DiscountCode string
	RedirectURL  string
	CancelURL    string
	Subscription bool
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is a hosted checkout backend.
type Provider interface {
	Name() string
	// SignatureHeader is the request header carrying the webhook signature.
	SignatureHeader() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// ParseWebhook verifies the signature over the raw payload and
	// normalizes the event. Unknown event names come back as
	// models.EventUnhandled, not as an error.
	ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

// IsTimeout reports whether err came from a deadline on the provider call.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func kindFromName(name string) models.WebhookEventKind {
	switch models.WebhookEventKind(name) {
	case models.EventOrderCreated:
		return models.EventOrderCreated
	case models.EventSubscriptionPaymentSuccess:
		return models.EventSubscriptionPaymentSuccess
	default:
		return models.EventUnhandled
	}
}
