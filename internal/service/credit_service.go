package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/internal/repository"
	"github.com/sefazor/mapcraft-backend/pkg/metrics"
)

const CreditsUnlimited = "unlimited"

type CreditService struct {
	profiles  ProfileStore
	downloads DownloadStore
	logger    *zap.Logger
	now       func() time.Time
}

func NewCreditService(profiles ProfileStore, downloads DownloadStore, logger *zap.Logger) *CreditService {
	return &CreditService{
		profiles:  profiles,
		downloads: downloads,
		logger:    logger.With(zap.String("component", "credits")),
		now:       time.Now,
	}
}

// ConsumeCredit gates one billable export. Active pro profiles are never
// charged; everyone else pays one credit or gets InsufficientEntitlement.
func (s *CreditService) ConsumeCredit(ctx context.Context, req models.ConsumeCreditRequest) (*models.ConsumeCreditResponse, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, apperror.Validation("Valid userId is required")
	}

	ctx, span := tracer.Start(ctx, "credits.consume")
	defer span.End()
	span.SetAttributes(attribute.String("profile.id", userID.String()))

	profile, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		metrics.CreditConsumptions.WithLabelValues("not_found").Inc()
		return nil, apperror.NotFound("Profile not found")
	}
	if err != nil {
		metrics.CreditConsumptions.WithLabelValues("error").Inc()
		return nil, apperror.Internal(err)
	}

	if profile.IsActivePro(s.now()) {
		s.logUsage(ctx, userID, req)
		metrics.CreditConsumptions.WithLabelValues("pro").Inc()
		return &models.ConsumeCreditResponse{Success: true, Credits: CreditsUnlimited, IsPro: true}, nil
	}

	balance, err := s.profiles.ConsumeCredit(ctx, userID)
	if errors.Is(err, repository.ErrInsufficientCredits) {
		metrics.CreditConsumptions.WithLabelValues("insufficient").Inc()
		return nil, apperror.InsufficientEntitlement("No credits remaining").WithField("credits", 0)
	}
	if err != nil {
		metrics.CreditConsumptions.WithLabelValues("error").Inc()
		return nil, apperror.Internal(err)
	}

	s.logUsage(ctx, userID, req)
	metrics.CreditConsumptions.WithLabelValues("charged").Inc()
	return &models.ConsumeCreditResponse{Success: true, Credits: balance, IsPro: false}, nil
}

// logUsage runs after the charge and never fails the request.
func (s *CreditService) logUsage(ctx context.Context, userID uuid.UUID, req models.ConsumeCreditRequest) {
	err := s.downloads.Create(ctx, &models.MapDownload{
		UserID:   &userID,
		Theme:    req.Theme,
		Location: req.Location,
		Size:     req.Size,
	})
	if err != nil {
		metrics.UsageLogFailures.WithLabelValues("credit_consumer").Inc()
		s.logger.Warn("usage log write failed", zap.String("profile_id", userID.String()), zap.Error(err))
	}
}
