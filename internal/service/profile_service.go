package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/internal/repository"
)

const paymentHistoryLimit = 50

type ProfileService struct {
	profiles      ProfileStore
	payments      PaymentStore
	signupCredits int
	logger        *zap.Logger
	now           func() time.Time
}

func NewProfileService(profiles ProfileStore, payments PaymentStore, signupCredits int, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		profiles:      profiles,
		payments:      payments,
		signupCredits: signupCredits,
		logger:        logger.With(zap.String("component", "profile")),
		now:           time.Now,
	}
}

// GetProfile returns the caller's entitlement snapshot, creating the
// profile with the signup bonus the first time a user is seen.
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID, email string) (*models.ProfileResponse, error) {
	if email == "" {
		return nil, apperror.Validation("Token has no email claim")
	}

	profile, err := s.profiles.EnsureProfile(ctx, userID, email, s.signupCredits)
	if errors.Is(err, repository.ErrEmailTaken) {
		s.logger.Warn("email already held by another profile", zap.String("profile_id", userID.String()))
		return nil, apperror.Conflict("Email is already linked to another account")
	}
	if err != nil {
		s.logger.Error("ensure profile failed", zap.String("profile_id", userID.String()), zap.Error(err))
		return nil, apperror.Internal(err)
	}

	resp := models.NewProfileResponse(profile, s.now())
	return &resp, nil
}

func (s *ProfileService) GetPaymentHistory(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	payments, err := s.payments.GetUserPaymentHistory(ctx, userID, paymentHistoryLimit)
	if err != nil {
		s.logger.Error("load payment history failed", zap.String("profile_id", userID.String()), zap.Error(err))
		return nil, apperror.Internal(err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}
