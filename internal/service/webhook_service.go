package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/internal/repository"
	"github.com/sefazor/mapcraft-backend/pkg/email"
	"github.com/sefazor/mapcraft-backend/pkg/metrics"
	"github.com/sefazor/mapcraft-backend/pkg/payment"
)

type WebhookOutcome string

const (
	OutcomeApplied   WebhookOutcome = "applied"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
	OutcomeUnhandled WebhookOutcome = "unhandled"
)

type WebhookResult struct {
	Outcome WebhookOutcome
	Event   *models.WebhookEvent
	Profile *models.Profile
}

type WebhookConfig struct {
	CreditsVariantID      string
	SubscriptionVariantID string
	CreditsPerPack        int
}

type eventHandler func(ctx context.Context, event *models.WebhookEvent) (*WebhookResult, error)

// WebhookService is the only writer of entitlement grants.
type WebhookService struct {
	provider payment.Provider
	profiles ProfileStore
	receipts ReceiptSender
	cfg      WebhookConfig
	logger   *zap.Logger
	now      func() time.Time
	handlers map[models.WebhookEventKind]eventHandler
}

func NewWebhookService(provider payment.Provider, profiles ProfileStore, receipts ReceiptSender, cfg WebhookConfig, logger *zap.Logger) *WebhookService {
	if cfg.CreditsPerPack <= 0 {
		cfg.CreditsPerPack = 5
	}

	s := &WebhookService{
		provider: provider,
		profiles: profiles,
		receipts: receipts,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "webhook")),
		now:      time.Now,
	}
	s.handlers = map[models.WebhookEventKind]eventHandler{
		models.EventOrderCreated:               s.handleOrderCreated,
		models.EventSubscriptionPaymentSuccess: s.handleSubscriptionPayment,
		models.EventUnhandled:                  s.handleUnhandled,
	}
	return s
}

func (s *WebhookService) SignatureHeader() string {
	return s.provider.SignatureHeader()
}

// HandleWebhook verifies, parses and applies one provider callback.
// Errors are only returned for rejections (bad signature) and for
// failures the provider should retry.
func (s *WebhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := tracer.Start(ctx, "webhook.reconcile",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("webhook.provider", s.provider.Name())),
	)
	defer span.End()

	event, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")

		if errors.Is(err, payment.ErrInvalidSignature) {
			metrics.WebhookEvents.WithLabelValues(s.provider.Name(), "", "rejected").Inc()
			s.logger.Warn("webhook signature rejected", zap.Int("payload_bytes", len(payload)))
			return nil, apperror.Authentication("Invalid signature")
		}
		metrics.WebhookEvents.WithLabelValues(s.provider.Name(), "", "error").Inc()
		s.logger.Error("webhook payload could not be parsed", zap.Error(err))
		return nil, apperror.Internal(err)
	}

	span.SetAttributes(
		attribute.String("webhook.event_name", event.Name),
		attribute.String("webhook.kind", string(event.Kind)),
		attribute.String("webhook.object_id", event.ObjectID),
	)

	handler, ok := s.handlers[event.Kind]
	if !ok {
		handler = s.handleUnhandled
	}

	result, err := handler(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		metrics.WebhookEvents.WithLabelValues(event.Provider, string(event.Kind), "error").Inc()
		s.logger.Error("webhook processing failed",
			zap.String("event_name", event.Name),
			zap.String("event_key", event.DedupKey()),
			zap.Error(err),
		)
		return nil, apperror.Internal(err)
	}

	metrics.WebhookEvents.WithLabelValues(event.Provider, string(event.Kind), string(result.Outcome)).Inc()
	span.SetAttributes(attribute.String("webhook.outcome", string(result.Outcome)))
	return result, nil
}

func (s *WebhookService) handleUnhandled(_ context.Context, event *models.WebhookEvent) (*WebhookResult, error) {
	s.logger.Info("webhook event not handled", zap.String("event_name", event.Name))
	return &WebhookResult{Outcome: OutcomeUnhandled, Event: event}, nil
}

func (s *WebhookService) handleOrderCreated(ctx context.Context, event *models.WebhookEvent) (*WebhookResult, error) {
	grant := s.newGrant(event)

	switch event.VariantID {
	case "":
	case s.cfg.CreditsVariantID:
		grant.Credits = s.cfg.CreditsPerPack
	case s.cfg.SubscriptionVariantID:
		grant.ProExpiresAt = s.proExpiry()
	}

	status := event.Status
	if status == "" {
		status = models.PaymentStatusPaid
	}
	orderID := event.OrderID
	if orderID == "" {
		orderID = event.ObjectID
	}
	grant.Payment = &models.Payment{
		Provider:        event.Provider,
		ProviderOrderID: orderID,
		VariantID:       event.VariantID,
		Amount:          event.Amount,
		Status:          status,
	}

	result, err := s.apply(ctx, event, grant)
	if err != nil || result.Outcome != OutcomeApplied {
		return result, err
	}

	s.sendReceipt(email.Receipt{
		Email:    event.Email,
		Credits:  grant.Credits,
		ProUntil: grant.ProExpiresAt,
		Amount:   event.Amount,
		OrderID:  orderID,
	})
	return result, nil
}

func (s *WebhookService) handleSubscriptionPayment(ctx context.Context, event *models.WebhookEvent) (*WebhookResult, error) {
	grant := s.newGrant(event)
	grant.ProExpiresAt = s.proExpiry()
	return s.apply(ctx, event, grant)
}

func (s *WebhookService) newGrant(event *models.WebhookEvent) *models.Grant {
	return &models.Grant{
		EventKey:  event.DedupKey(),
		EventName: event.Name,
		Provider:  event.Provider,
		Email:     event.Email,
	}
}

func (s *WebhookService) proExpiry() *time.Time {
	until := s.now().AddDate(0, 1, 0)
	return &until
}

func (s *WebhookService) apply(ctx context.Context, event *models.WebhookEvent, grant *models.Grant) (*WebhookResult, error) {
	log := s.logger.With(
		zap.String("event_name", event.Name),
		zap.String("event_key", grant.EventKey),
	)

	if event.ObjectID == "" {
		log.Warn("webhook event has no object id, ignoring")
		return &WebhookResult{Outcome: OutcomeIgnored, Event: event}, nil
	}
	if event.Email == "" {
		log.Warn("webhook event has no customer email, ignoring")
		return &WebhookResult{Outcome: OutcomeIgnored, Event: event}, nil
	}

	profile, err := s.profiles.ApplyGrant(ctx, grant)
	switch {
	case errors.Is(err, repository.ErrDuplicateEvent):
		log.Info("webhook event already processed")
		return &WebhookResult{Outcome: OutcomeDuplicate, Event: event}, nil
	case errors.Is(err, repository.ErrProfileNotFound):
		log.Warn("no profile for webhook email, ignoring")
		return &WebhookResult{Outcome: OutcomeIgnored, Event: event}, nil
	case err != nil:
		return nil, err
	}

	log.Info("webhook grant applied",
		zap.String("profile_id", profile.ID.String()),
		zap.Int("credits_granted", grant.Credits),
		zap.Bool("pro_granted", grant.ProExpiresAt != nil),
		zap.Int("credits", profile.Credits),
	)
	return &WebhookResult{Outcome: OutcomeApplied, Event: event, Profile: profile}, nil
}

// sendReceipt never affects the webhook response.
func (s *WebhookService) sendReceipt(r email.Receipt) {
	if s.receipts == nil {
		return
	}
	go func() {
		if err := s.receipts.SendReceipt(r); err != nil {
			s.logger.Warn("receipt email failed", zap.String("order_id", r.OrderID), zap.Error(err))
		}
	}()
}
