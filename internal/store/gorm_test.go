package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	"tinking/backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormStore(t *testing.T) *Gorm {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "tinking.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Tink{}, &models.Draft{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGorm(db)
}

func TestGormTinkRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newGormStore(t)

	id, err := s.SaveTink(ctx, sampleSteps())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	loaded, err := s.LoadTink(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "https://example.com", models.StartURL(loaded))
	assert.Equal(t, "h1", loaded[1].Selector)
	assert.Equal(t, models.ActionExtractText, loaded[1].Action)

	_, err = s.LoadTink(ctx, "missing")
	assert.ErrorIs(t, err, ErrTinkNotFound)

	_, err = s.SaveTink(ctx, nil)
	assert.ErrorIs(t, err, models.ErrNoSteps)
}

func TestGormDraftUpsert(t *testing.T) {
	ctx := context.Background()
	s := newGormStore(t)

	_, err := s.LoadDraft(ctx, "r1")
	assert.ErrorIs(t, err, ErrDraftNotFound)

	steps := sampleSteps()
	require.NoError(t, s.SaveDraft(ctx, "r1", steps))
	steps[1].Selector = "h2"
	require.NoError(t, s.SaveDraft(ctx, "r1", steps))

	var count int64
	require.NoError(t, s.db.Model(&models.Draft{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	loaded, err := s.LoadDraft(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "h2", loaded[1].Selector)

	require.NoError(t, s.DeleteDraft(ctx, "r1"))
	_, err = s.LoadDraft(ctx, "r1")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}

func TestGormPurgeDrafts(t *testing.T) {
	ctx := context.Background()
	s := newGormStore(t)
	require.NoError(t, s.SaveDraft(ctx, "a", sampleSteps()))
	require.NoError(t, s.SaveDraft(ctx, "b", sampleSteps()))

	n, err := s.PurgeDrafts(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.PurgeDrafts(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = s.LoadDraft(ctx, "a")
	assert.ErrorIs(t, err, ErrDraftNotFound)
}
