package store

import (
	"context"
	"fmt"
	"sync"
	"time"
	"tinking/backend/internal/models"

	"github.com/google/uuid"
)

// Memory keeps everything in process. Steps are copied on the way in and
// out so callers never share slices with the store.
type Memory struct {
	mu     sync.RWMutex
	tinks  map[string][]models.Step
	drafts map[string]draft
}

type draft struct {
	steps   []models.Step
	updated time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tinks:  make(map[string][]models.Step),
		drafts: make(map[string]draft),
	}
}

func (m *Memory) SaveTink(ctx context.Context, steps []models.Step) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := models.ValidateSteps(steps); err != nil {
		return "", fmt.Errorf("store: save tink: %w", err)
	}
	id := uuid.New().String()
	m.mu.Lock()
	m.tinks[id] = models.CloneSteps(steps)
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) LoadTink(ctx context.Context, id string) ([]models.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	steps, ok := m.tinks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTinkNotFound, id)
	}
	return models.CloneSteps(steps), nil
}

func (m *Memory) SaveDraft(ctx context.Context, sessionID string, steps []models.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.drafts[sessionID] = draft{steps: models.CloneSteps(steps), updated: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadDraft(ctx context.Context, sessionID string) ([]models.Step, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, sessionID)
	}
	return models.CloneSteps(d.steps), nil
}

func (m *Memory) DeleteDraft(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.drafts, sessionID)
	m.mu.Unlock()
	return nil
}

// PurgeDrafts removes drafts not updated since before.
func (m *Memory) PurgeDrafts(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.drafts {
		if d.updated.Before(before) {
			delete(m.drafts, id)
			n++
		}
	}
	return n, nil
}
