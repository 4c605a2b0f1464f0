package jobs

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/storage"
	"github.com/agropal/agropal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeperFixture(t *testing.T) (*storage.LocalStorage, *store.Memory, *OrphanSweeper) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	local, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), BaseURL: "/uploads"}, logger)
	require.NoError(t, err)
	records := store.NewMemory()

	return local, records, NewOrphanSweeper(local, records, time.Hour, logger)
}

func putPhoto(t *testing.T, st *storage.LocalStorage, key string, age time.Duration) {
	t.Helper()
	require.NoError(t, st.Put(context.Background(), key, bytes.NewReader([]byte("jpeg")), storage.PutOptions{ContentType: "image/jpeg"}))
	when := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(filepath.Join(st.BasePath(), filepath.FromSlash(key)), when, when))
}

func exists(t *testing.T, st *storage.LocalStorage, key string) bool {
	t.Helper()
	ok, err := st.Exists(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestOrphanSweeper_DeletesOnlyOldUnreferenced(t *testing.T) {
	ctx := context.Background()
	local, records, sweeper := newSweeperFixture(t)

	putPhoto(t, local, "crops/kept.jpg", 48*time.Hour)
	putPhoto(t, local, "crops/orphan.jpg", 48*time.Hour)
	putPhoto(t, local, "crops/fresh.jpg", time.Minute)

	require.NoError(t, records.CreateDiagnosis(ctx, &domain.DiagnosisRecord{
		Image:  domain.ImageRef{Key: "crops/kept.jpg"},
		Status: domain.DiagnosisStatusDiagnosed,
	}))

	require.NoError(t, sweeper.Run(ctx))

	assert.True(t, exists(t, local, "crops/kept.jpg"), "referenced photo kept")
	assert.False(t, exists(t, local, "crops/orphan.jpg"), "orphan deleted")
	assert.True(t, exists(t, local, "crops/fresh.jpg"), "young photo kept")
}

func TestOrphanSweeper_EmptyUploadArea(t *testing.T) {
	_, _, sweeper := newSweeperFixture(t)
	assert.NoError(t, sweeper.Run(context.Background()))
}

func TestOrphanSweeper_Type(t *testing.T) {
	_, _, sweeper := newSweeperFixture(t)
	assert.Equal(t, JobTypeSweepOrphanUploads, sweeper.Type())
}
