package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sefazor/mapcraft-backend/internal/models"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrDuplicateEvent      = errors.New("webhook event already processed")
	ErrEmailTaken          = errors.New("email belongs to another profile")
)

// ProfileRepository owns every write to a profile's balance and pro
// status. Mutations are single SQL expressions so concurrent requests
// never lose updates.
type ProfileRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{
		db:  db,
		now: time.Now,
	}
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByEmail matches case-insensitively.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("lower(email) = lower(?)", email).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// EnsureProfile creates the profile with the signup bonus on first sight
// and returns the stored row either way. ErrEmailTaken means the email is
// already held by a profile with a different id.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, id uuid.UUID, email string, signupCredits int) (*models.Profile, error) {
	profile := &models.Profile{
		ID:      id,
		Email:   email,
		Credits: signupCredits,
	}

	// no conflict target: covers both the id key and the lower(email) index
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(profile).Error
	if err != nil {
		return nil, err
	}

	stored, err := r.GetByID(ctx, id)
	if !errors.Is(err, ErrProfileNotFound) {
		return stored, err
	}
	if _, emailErr := r.GetByEmail(ctx, email); emailErr == nil {
		return nil, ErrEmailTaken
	}
	return nil, err
}

// ConsumeCredit decrements the balance by one only if it is positive and
// returns the new balance.
func (r *ProfileRepository) ConsumeCredit(ctx context.Context, id uuid.UUID) (int, error) {
	var balance int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Profile{}).
			Where("id = ? AND credits > 0", id).
			UpdateColumns(map[string]interface{}{
				"credits":    gorm.Expr("credits - 1"),
				"updated_at": r.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientCredits
		}

		var credits []int
		if err := tx.Model(&models.Profile{}).Where("id = ?", id).Pluck("credits", &credits).Error; err != nil {
			return err
		}
		if len(credits) == 0 {
			return ErrProfileNotFound
		}
		balance = credits[0]
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ApplyGrant marks the event processed and applies its effects in one
// transaction. A second delivery of the same event key returns
// ErrDuplicateEvent and changes nothing. An unknown email returns
// ErrProfileNotFound without marking the event.
func (r *ProfileRepository) ApplyGrant(ctx context.Context, grant *models.Grant) (*models.Profile, error) {
	var updated models.Profile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		err := tx.Where("lower(email) = lower(?)", grant.Email).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		if err != nil {
			return err
		}

		mark := &models.ProcessedWebhookEvent{
			Provider:  grant.Provider,
			EventKey:  grant.EventKey,
			EventName: grant.EventName,
			ProfileID: &profile.ID,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoNothing: true,
		}).Create(mark)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateEvent
		}

		updates := map[string]interface{}{"updated_at": r.now()}
		if grant.Credits > 0 {
			updates["credits"] = gorm.Expr("credits + ?", grant.Credits)
		}
		if grant.ProExpiresAt != nil {
			updates["is_pro"] = true
			updates["pro_expires_at"] = *grant.ProExpiresAt
		}
		if err := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).UpdateColumns(updates).Error; err != nil {
			return err
		}

		if grant.Payment != nil {
			grant.Payment.UserID = profile.ID
			if err := tx.Create(grant.Payment).Error; err != nil {
				return err
			}
		}

		return tx.Where("id = ?", profile.ID).First(&updated).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
