package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebhookEventKind is the closed set of provider events the reconciler
// knows how to apply. Anything else is EventUnhandled and acknowledged.
type WebhookEventKind string

const (
	EventOrderCreated               WebhookEventKind = "order_created"
	EventSubscriptionPaymentSuccess WebhookEventKind = "subscription_payment_success"
	EventUnhandled                  WebhookEventKind = "unhandled"
)

// WebhookEvent is a verified provider callback normalized across providers.
type WebhookEvent struct {
	Kind      WebhookEventKind
	Name      string // provider's own event name
	Provider  string
	ObjectID  string // provider id of the order/invoice the event is about
	Email     string
	VariantID string
	OrderID   string
	Amount    int64
	Status    string
}

// DedupKey identifies the business effect of the event, so redeliveries and
// concurrent duplicates collapse onto one row in webhook_events.
func (e *WebhookEvent) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s", e.Provider, e.Kind, e.ObjectID)
}

// ProcessedWebhookEvent is the dedup row; event_key is unique.
type ProcessedWebhookEvent struct {
	ID        uint       `gorm:"primaryKey"`
	Provider  string     `gorm:"not null"`
	EventKey  string     `gorm:"uniqueIndex;not null"`
	EventName string     `gorm:"not null"`
	ProfileID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time
}

func (ProcessedWebhookEvent) TableName() string {
	return "webhook_events"
}

// Grant is everything one webhook event may do to a profile, applied in a
// single transaction together with the dedup insert.
type Grant struct {
	EventKey     string
	EventName    string
	Provider     string
	Email        string
	Credits      int
	ProExpiresAt *time.Time
	Payment      *Payment
}
