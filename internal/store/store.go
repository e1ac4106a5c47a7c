// Package store persists saved recipes (Tinks) and editing drafts.
package store

import (
	"context"
	"errors"
	"time"
	"tinking/backend/internal/models"
)

var (
	ErrTinkNotFound  = errors.New("store: tink not found")
	ErrDraftNotFound = errors.New("store: draft not found")
)

// TinkStore saves a step list by content and loads it back by id.
type TinkStore interface {
	SaveTink(ctx context.Context, steps []models.Step) (string, error)
	LoadTink(ctx context.Context, id string) ([]models.Step, error)
}

// DraftStore keeps the latest step list of each editing session.
type DraftStore interface {
	SaveDraft(ctx context.Context, sessionID string, steps []models.Step) error
	LoadDraft(ctx context.Context, sessionID string) ([]models.Step, error)
	DeleteDraft(ctx context.Context, sessionID string) error
	// PurgeDrafts removes drafts last written before the cutoff.
	PurgeDrafts(ctx context.Context, before time.Time) (int64, error)
}

// Store is both.
type Store interface {
	TinkStore
	DraftStore
}
