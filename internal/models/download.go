package models

import (
	"time"

	"github.com/google/uuid"
)

// MapDownload is an analytics row. UserID is nil for anonymous exports.
type MapDownload struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	UserID    *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Theme     string     `json:"theme"`
	Location  string     `json:"location"`
	Size      string     `json:"size"`
	Format    string     `json:"format"`
	CreatedAt time.Time  `json:"created_at"`
}

type ConsumeCreditRequest struct {
	UserID   string `json:"userId" validate:"required,uuid"`
	Theme    string `json:"theme"`
	Location string `json:"location"`
	Size     string `json:"size"`
}

// ConsumeCreditResponse.Credits is either the new balance or "unlimited".
type ConsumeCreditResponse struct {
	Success bool `json:"success"`
	Credits any  `json:"credits"`
	IsPro   bool `json:"isPro"`
}

type DownloadLogRequest struct {
	UserID   string `json:"userId"`
	Theme    string `json:"theme"`
	Location string `json:"location"`
	Size     string `json:"size"`
	Format   string `json:"format"`
}

type StatsResponse struct {
	MapsCreated int64 `json:"maps_created"`
	Success     bool  `json:"success"`
}
