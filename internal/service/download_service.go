package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sefazor/mapcraft-backend/internal/models"
	"github.com/sefazor/mapcraft-backend/pkg/metrics"
)

type DownloadService struct {
	downloads DownloadStore
	logger    *zap.Logger
}

func NewDownloadService(downloads DownloadStore, logger *zap.Logger) *DownloadService {
	return &DownloadService{
		downloads: downloads,
		logger:    logger.With(zap.String("component", "downloads")),
	}
}

// LogDownload records an export for analytics. It has no error return:
// failures are logged and the caller always reports success.
func (s *DownloadService) LogDownload(ctx context.Context, req models.DownloadLogRequest) {
	download := &models.MapDownload{
		Theme:    req.Theme,
		Location: req.Location,
		Size:     req.Size,
		Format:   req.Format,
	}
	if id, err := uuid.Parse(req.UserID); err == nil {
		download.UserID = &id
	}

	if err := s.downloads.Create(ctx, download); err != nil {
		metrics.UsageLogFailures.WithLabelValues("download_log").Inc()
		s.logger.Warn("download log write failed", zap.Error(err))
	}
}

type StatsService struct {
	downloads  DownloadStore
	baseOffset int64
	logger     *zap.Logger
}

func NewStatsService(downloads DownloadStore, baseOffset int64, logger *zap.Logger) *StatsService {
	return &StatsService{
		downloads:  downloads,
		baseOffset: baseOffset,
		logger:     logger.With(zap.String("component", "stats")),
	}
}

// MapsCreated falls back to the base offset when the count is unavailable.
func (s *StatsService) MapsCreated(ctx context.Context) int64 {
	count, err := s.downloads.Count(ctx)
	if err != nil {
		s.logger.Warn("count map downloads failed", zap.Error(err))
		return s.baseOffset
	}
	return s.baseOffset + count
}
