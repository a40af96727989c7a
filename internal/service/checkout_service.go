package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/config"
	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/pkg/metrics"
	"github.com/sefazor/mapcraft-backend/pkg/payment"
)

type CheckoutConfig struct {
	SubscriptionVariantID string
	RedirectURL           string
	CancelURL             string
	Timeout               time.Duration
}

type CheckoutService struct {
	provider  payment.Provider
	discounts config.DiscountTable
	cfg       CheckoutConfig
	logger    *zap.Logger
}

func NewCheckoutService(provider payment.Provider, discounts config.DiscountTable, cfg CheckoutConfig, logger *zap.Logger) *CheckoutService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CheckoutService{
		provider:  provider,
		discounts: discounts,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "checkout")),
	}
}

// CreateCheckout opens a hosted checkout for the variant, with the
// regional discount for country attached when one exists.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req models.CheckoutRequest, country string) (*models.CheckoutResponse, error) {
	if strings.TrimSpace(req.VariantID) == "" {
		return nil, apperror.Validation("variantId is required")
	}
	if s.provider == nil {
		return nil, apperror.Configuration("Payment provider is not configured")
	}

	ctx, span := tracer.Start(ctx, "checkout.create")
	defer span.End()

	country = strings.ToUpper(strings.TrimSpace(country))
	discount, discounted := s.discounts.Lookup(country)

	span.SetAttributes(
		attribute.String("checkout.provider", s.provider.Name()),
		attribute.String("checkout.variant_id", req.VariantID),
		attribute.String("checkout.country", country),
		attribute.Bool("checkout.discounted", discounted),
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	session, err := s.provider.CreateCheckout(ctx, payment.CheckoutRequest{
		VariantID:    req.VariantID,
		Email:        req.Email,
		Name:         req.Name,
		UserID:       req.UserID,
		DiscountCode: discount.Code,
		RedirectURL:  s.cfg.RedirectURL,
		CancelURL:    s.cfg.CancelURL,
		Subscription: s.cfg.SubscriptionVariantID != "" && req.VariantID == s.cfg.SubscriptionVariantID,
	})
	metrics.ProviderRequestDuration.WithLabelValues(s.provider.Name()).Observe(time.Since(started).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		metrics.CheckoutSessions.WithLabelValues("error", strconv.FormatBool(discounted)).Inc()
		return nil, s.classify(err, req.VariantID)
	}

	metrics.CheckoutSessions.WithLabelValues("created", strconv.FormatBool(discounted)).Inc()
	s.logger.Info("checkout created",
		zap.String("provider", s.provider.Name()),
		zap.String("variant_id", req.VariantID),
		zap.String("country", country),
		zap.String("discount_code", discount.Code),
	)

	return &models.CheckoutResponse{CheckoutURL: session.URL}, nil
}

func (s *CheckoutService) classify(err error, variantID string) error {
	fields := []zap.Field{
		zap.String("provider", s.provider.Name()),
		zap.String("variant_id", variantID),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, payment.ErrMissingCredentials):
		s.logger.Error("payment provider credentials missing", fields...)
		return apperror.Wrap(apperror.KindConfiguration, "Payment provider is not configured", err)
	case errors.Is(err, payment.ErrInvalidVariant):
		s.logger.Error("catalog variant is not a valid provider id", fields...)
		return apperror.Wrap(apperror.KindConfiguration, "Payment provider is not configured", err)
	case payment.IsTimeout(err):
		s.logger.Warn("payment provider timed out", fields...)
		return apperror.UpstreamTimeout(err)
	default:
		s.logger.Error("payment provider request failed", fields...)
		return apperror.Upstream(err)
	}
}
