package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/config"
	"github.com/sefazor/mapcraft-backend/internal/handler"
	"github.com/sefazor/mapcraft-backend/internal/middleware"
	"github.com/sefazor/mapcraft-backend/internal/repository"
	"github.com/sefazor/mapcraft-backend/internal/service"
	"github.com/sefazor/mapcraft-backend/pkg/database"
	"github.com/sefazor/mapcraft-backend/pkg/email"
	jwtPkg "github.com/sefazor/mapcraft-backend/pkg/jwt"
	"github.com/sefazor/mapcraft-backend/pkg/logger"
	"github.com/sefazor/mapcraft-backend/pkg/payment"
	"github.com/sefazor/mapcraft-backend/pkg/ratelimit"
	redisPkg "github.com/sefazor/mapcraft-backend/pkg/redis"
	"github.com/sefazor/mapcraft-backend/pkg/tracing"
	"github.com/sefazor/mapcraft-backend/pkg/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With(zap.String("env", cfg.Environment))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traces, err := tracing.New(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		Environment:    cfg.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traces.Shutdown(flushCtx); err != nil {
			log.Warn("trace flush failed", zap.Error(err))
		}
	}()
	if cfg.Tracing.JaegerEndpoint == "" {
		log.Info("JAEGER_ENDPOINT not set, spans are not exported")
	}

	// Database
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.RunMigrations(ctx, db, log); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	discounts, err := config.LoadDiscounts(cfg.Payment.DiscountsFile)
	if err != nil {
		log.Fatal("failed to load regional discounts", zap.Error(err))
	}

	// Rate limiting: Redis when configured so limits hold across instances,
	// process memory otherwise.
	var (
		limitStore ratelimit.Store
		fiberStore fiber.Storage
	)
	if cfg.RedisURL != "" {
		client, err := redisPkg.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		limitStore = ratelimit.NewRedisStore(client)
		fiberStore = redisPkg.NewStorage(client)
	} else {
		log.Warn("REDIS_URL not set, rate limits are per instance")
		limitStore = ratelimit.NewMemoryStore()
	}

	limits, err := ratelimit.New(limitStore, cfg.RateLimit.Rules())
	if err != nil {
		log.Fatal("invalid rate limit configuration", zap.Error(err))
	}

	provider := newPaymentProvider(cfg)
	log.Info("payment provider selected", zap.String("provider", provider.Name()))

	// Email service
	emailService, err := email.NewEmailService(email.Config{
		APIKey:       cfg.Email.ResendAPIKey,
		FromAddress:  cfg.Email.FromAddress,
		FromName:     cfg.Email.FromName,
		DashboardURL: strings.TrimRight(cfg.PublicURL, "/") + "/dashboard",
	}, log)
	if err != nil {
		log.Fatal("failed to initialize email service", zap.Error(err))
	}
	if !emailService.Enabled() {
		log.Warn("RESEND_API_KEY not set, receipts are disabled")
	}

	// Repositories
	profileRepo := repository.NewProfileRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	downloadRepo := repository.NewDownloadRepository(db)

	// Services
	checkoutService := service.NewCheckoutService(provider, discounts, service.CheckoutConfig{
		SubscriptionVariantID: cfg.Payment.SubscriptionVariantID,
		RedirectURL:           cfg.CheckoutRedirectURL(),
		CancelURL:             strings.TrimRight(cfg.PublicURL, "/") + "/pricing",
		Timeout:               cfg.Payment.Timeout,
	}, log)
	webhookService := service.NewWebhookService(provider, profileRepo, emailService, service.WebhookConfig{
		CreditsVariantID:      cfg.Payment.CreditsVariantID,
		SubscriptionVariantID: cfg.Payment.SubscriptionVariantID,
		CreditsPerPack:        cfg.Payment.CreditsPerPack,
	}, log)
	creditService := service.NewCreditService(profileRepo, downloadRepo, log)
	downloadService := service.NewDownloadService(downloadRepo, log)
	statsService := service.NewStatsService(downloadRepo, cfg.StatsOffset, log)
	profileService := service.NewProfileService(profileRepo, paymentRepo, cfg.SignupCredits, log)

	validator := utils.NewValidator()
	tokens := jwtPkg.NewValidator(cfg.JWTSecret)
	if !tokens.Enabled() {
		log.Warn("SUPABASE_JWT_SECRET not set, authenticated routes reject every request")
	}

	// Handlers
	paymentHandler := handler.NewPaymentHandler(checkoutService, webhookService, profileService, validator)
	creditHandler := handler.NewCreditHandler(creditService, validator)
	downloadHandler := handler.NewDownloadHandler(downloadService, statsService, log)
	profileHandler := handler.NewProfileHandler(profileService)

	// Router
	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler(log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New())
	app.Use(limiter.New(limiter.Config{
		Max:               cfg.RateLimit.Global,
		Expiration:        cfg.RateLimit.Window,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           fiberStore,
		KeyGenerator:      middleware.ClientIdentity,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}))

	app.Get("/health", handler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Public routes
	api.Post("/checkout", middleware.RateLimit(limits, ratelimit.ClassPurchase, log), paymentHandler.CreateCheckout)
	api.Post("/webhooks/payments", middleware.RateLimit(limits, ratelimit.ClassAPI, log), paymentHandler.HandleWebhook)
	api.Post("/credits/consume", middleware.RateLimit(limits, ratelimit.ClassMapGeneration, log), creditHandler.ConsumeCredit)
	api.Post("/downloads", middleware.RateLimit(limits, ratelimit.ClassAPI, log), downloadHandler.LogDownload)
	api.Get("/stats", downloadHandler.GetStats)

	// Protected routes
	auth := middleware.AuthMiddleware(tokens, log)
	api.Get("/profile", middleware.RateLimit(limits, ratelimit.ClassAuth, log), auth, profileHandler.GetMyProfile)
	api.Get("/payments/history", middleware.RateLimit(limits, ratelimit.ClassAPI, log), auth, paymentHandler.GetPaymentHistory)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("server starting", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newPaymentProvider(cfg *config.Config) payment.Provider {
	if cfg.Payment.Provider == config.ProviderStripe {
		return payment.NewStripeService(payment.StripeConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookSecret,
			Timeout:       cfg.Payment.Timeout,
		})
	}
	return payment.NewLemonSqueezy(payment.LemonSqueezyConfig{
		APIKey:        cfg.Payment.LemonSqueezyAPIKey,
		StoreID:       cfg.Payment.LemonSqueezyStoreID,
		WebhookSecret: cfg.Payment.LemonSqueezySecret,
		Timeout:       cfg.Payment.Timeout,
	})
}
