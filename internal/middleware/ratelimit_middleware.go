package middleware

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/apperror"
	"github.com/sefazor/mapcraft-backend/pkg/metrics"
	"github.com/sefazor/mapcraft-backend/pkg/ratelimit"
)

const unknownClient = "unknown"

// ClientIdentity is the first X-Forwarded-For entry. Callers without the
// header share one bucket.
func ClientIdentity(c *fiber.Ctx) string {
	forwarded := c.Get(fiber.HeaderXForwardedFor)
	if forwarded == "" {
		return unknownClient
	}
	first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
	if first == "" {
		return unknownClient
	}
	return first
}

// RateLimit rejects the request with 429 before the handler runs once the
// caller exceeds the class limit. Limiter failures let the request through.
func RateLimit(checker ratelimit.Checker, class ratelimit.Class, logger *zap.Logger) fiber.Handler {
	log := logger.With(zap.String("component", "ratelimit"), zap.String("class", string(class)))

	return func(c *fiber.Ctx) error {
		identity := ClientIdentity(c)

		res, err := checker.Limit(c.UserContext(), class, identity)
		if err != nil {
			metrics.RateLimitDecisions.WithLabelValues(string(class), "error").Inc()
			log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			metrics.RateLimitDecisions.WithLabelValues(string(class), "rejected").Inc()
			retry := int(math.Ceil(res.RetryAfter(time.Now()).Seconds()))
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(max(1, retry)))
			log.Info("rate limit exceeded", zap.String("client", identity))
			return apperror.RateLimited()
		}

		metrics.RateLimitDecisions.WithLabelValues(string(class), "allowed").Inc()
		return c.Next()
	}
}
