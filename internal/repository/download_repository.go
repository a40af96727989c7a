package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

type DownloadRepository struct {
	db *gorm.DB
}

func NewDownloadRepository(db *gorm.DB) *DownloadRepository {
	return &DownloadRepository{
		db: db,
	}
}

func (r *DownloadRepository) Create(ctx context.Context, download *models.MapDownload) error {
	return r.db.WithContext(ctx).Create(download).Error
}

func (r *DownloadRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.MapDownload{}).Count(&count).Error
	return count, err
}
