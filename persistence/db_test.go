package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SQLDeviceRepo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gw.db")
	db, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLDeviceRepo(db)
}

func TestSQLDeviceRepoSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	d := Device{Key: "D1", Name: "sensor-1", TemplateReference: "tpl", ManifestJSON: `{"feeds":[]}`}
	require.NoError(t, repo.Save(ctx, d))

	got, ok, err := repo.Get(ctx, "D1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, d, got)

	// Upsert on conflict.
	d.Name = "sensor-1-renamed"
	require.NoError(t, repo.Save(ctx, d))
	got, _, err = repo.Get(ctx, "D1")
	require.NoError(t, err)
	require.Equal(t, "sensor-1-renamed", got.Name)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "D1"))
	_, ok, err = repo.Get(ctx, "D1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLDeviceRepoGetMissing(t *testing.T) {
	repo := openTestDB(t)
	_, ok, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}
