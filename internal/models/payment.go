package models

import (
	"time"

	"github.com/google/uuid"
)

const PaymentStatusPaid = "paid"

// Payment is the append-only audit row written for every applied order.
type Payment struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	UserID          uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Provider        string    `json:"provider" gorm:"not null"`
	ProviderOrderID string    `json:"provider_order_id" gorm:"not null"`
	VariantID       string    `json:"variant_id"`
	Amount          int64     `json:"amount"`
	Status          string    `json:"status" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
}

type CheckoutRequest struct {
	VariantID string `json:"variantId" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Name      string `json:"name"`
	UserID    string `json:"userId" validate:"omitempty,uuid"`
}

type CheckoutResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
}
