package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

type DownloadLogger interface {
	LogDownload(ctx context.Context, req models.DownloadLogRequest)
}

type StatsProvider interface {
	MapsCreated(ctx context.Context) int64
}

type DownloadHandler struct {
	downloads DownloadLogger
	stats     StatsProvider
	logger    *zap.Logger
}

func NewDownloadHandler(downloads DownloadLogger, stats StatsProvider, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		stats:     stats,
		logger:    logger.With(zap.String("component", "downloads")),
	}
}

// LogDownload always reports success; analytics must not break exports.
func (h *DownloadHandler) LogDownload(c *fiber.Ctx) error {
	var req models.DownloadLogRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warn("unreadable download log body", zap.Error(err))
		return c.JSON(fiber.Map{"success": true})
	}

	h.downloads.LogDownload(c.UserContext(), req)
	return c.JSON(fiber.Map{"success": true})
}

func (h *DownloadHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(models.StatsResponse{
		MapsCreated: h.stats.MapsCreated(c.UserContext()),
		Success:     true,
	})
}
