package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

func TestDownloadService_LogDownload(t *testing.T) {
	store := newMemoryStore()
	svc := NewDownloadService(store, zaptest.NewLogger(t))
	id := uuid.New()

	svc.LogDownload(context.Background(), models.DownloadLogRequest{UserID: id.String(), Theme: "noir", Format: "svg"})
	svc.LogDownload(context.Background(), models.DownloadLogRequest{Theme: "blueprint", Format: "png"})
	svc.LogDownload(context.Background(), models.DownloadLogRequest{UserID: "anonymous", Format: "dxf"})

	require.Len(t, store.downloads, 3)
	require.NotNil(t, store.downloads[0].UserID)
	assert.Equal(t, id, *store.downloads[0].UserID)
	assert.Nil(t, store.downloads[1].UserID)
	assert.Nil(t, store.downloads[2].UserID)
	assert.Equal(t, "svg", store.downloads[0].Format)
}

func TestDownloadService_FailureSwallowed(t *testing.T) {
	store := newMemoryStore()
	store.downloadErr = errors.New("db down")
	svc := NewDownloadService(store, zaptest.NewLogger(t))

	assert.NotPanics(t, func() {
		svc.LogDownload(context.Background(), models.DownloadLogRequest{Theme: "noir"})
	})
}

func TestStatsService_MapsCreated(t *testing.T) {
	store := newMemoryStore()
	store.downloads = make([]models.MapDownload, 7)
	svc := NewStatsService(store, 1000, zaptest.NewLogger(t))

	assert.Equal(t, int64(1007), svc.MapsCreated(context.Background()))

	store.downloadErr = errors.New("db down")
	assert.Equal(t, int64(1000), svc.MapsCreated(context.Background()))
}
