package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"tinking/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm stores tinks and drafts as JSON columns.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) SaveTink(ctx context.Context, steps []models.Step) (string, error) {
	if err := models.ValidateSteps(steps); err != nil {
		return "", fmt.Errorf("store: save tink: %w", err)
	}
	tink := models.Tink{BaseModel: models.BaseModel{ID: uuid.New().String()}}
	if err := tink.SetSteps(steps); err != nil {
		return "", fmt.Errorf("store: save tink: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&tink).Error; err != nil {
		return "", fmt.Errorf("store: save tink: %w", err)
	}
	return tink.ID, nil
}

func (s *Gorm) LoadTink(ctx context.Context, id string) ([]models.Step, error) {
	var tink models.Tink
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tink).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTinkNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load tink: %w", err)
	}
	steps, err := tink.GetSteps()
	if err != nil {
		return nil, fmt.Errorf("store: decode tink %s: %w", id, err)
	}
	return steps, nil
}

func (s *Gorm) SaveDraft(ctx context.Context, sessionID string, steps []models.Step) error {
	draft := models.Draft{SessionID: sessionID, UpdatedAt: time.Now()}
	if err := draft.SetSteps(steps); err != nil {
		return fmt.Errorf("store: save draft: %w", err)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"steps", "updated_at"}),
	}).Create(&draft).Error
	if err != nil {
		return fmt.Errorf("store: save draft: %w", err)
	}
	return nil
}

func (s *Gorm) LoadDraft(ctx context.Context, sessionID string) ([]models.Step, error) {
	var draft models.Draft
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load draft: %w", err)
	}
	steps, err := draft.GetSteps()
	if err != nil {
		return nil, fmt.Errorf("store: decode draft %s: %w", sessionID, err)
	}
	return steps, nil
}

func (s *Gorm) DeleteDraft(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.Draft{}).Error
	if err != nil {
		return fmt.Errorf("store: delete draft: %w", err)
	}
	return nil
}

// PurgeDrafts removes drafts not updated since before.
func (s *Gorm) PurgeDrafts(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("updated_at < ?", before).Delete(&models.Draft{})
	if res.Error != nil {
		return 0, fmt.Errorf("store: purge drafts: %w", res.Error)
	}
	return res.RowsAffected, nil
}
