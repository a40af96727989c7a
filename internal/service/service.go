// Package service holds the billing rules: checkout creation, webhook
// reconciliation, credit consumption and the read-side helpers around
// them.
package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/pkg/email"
)

var tracer = otel.Tracer("github.com/sefazor/mapcraft-backend/internal/service")

// ProfileStore is the entitlement store. Implementations must make
// ConsumeCredit and ApplyGrant atomic.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	EnsureProfile(ctx context.Context, id uuid.UUID, email string, signupCredits int) (*models.Profile, error)
	ConsumeCredit(ctx context.Context, id uuid.UUID) (int, error)
	ApplyGrant(ctx context.Context, grant *models.Grant) (*models.Profile, error)
}

type PaymentStore interface {
	GetUserPaymentHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.Payment, error)
}

type DownloadStore interface {
	Create(ctx context.Context, download *models.MapDownload) error
	Count(ctx context.Context) (int64, error)
}

type ReceiptSender interface {
	SendReceipt(r email.Receipt) error
}
