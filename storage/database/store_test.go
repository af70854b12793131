package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursereview/core"
	"github.com/trezcool/coursereview/storage"
	testutil "github.com/trezcool/coursereview/tests"
)

func openSQLite(t *testing.T, migrate bool) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, SQLite, filepath.Join(t.TempDir(), "reviews.db"))
	require.NoError(t, err)
	if migrate {
		require.NoError(t, Migrate(ctx, db, "up"))
	}
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	testutil.TestBackend(t, func(t *testing.T) storage.Backend { return openSQLite(t, true) })
}

func TestStore_emptyCollections(t *testing.T) {
	s := openSQLite(t, true)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testutil.SampleDocument()))

	doc, err := s.Load(ctx)
	require.NoError(t, err)
	doc.Pending, doc.Approved, doc.Users, doc.Tokens = nil, nil, nil, nil
	require.NoError(t, s.Save(ctx, doc))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Empty(t, got.Pending)
	assert.Empty(t, got.Approved)
	assert.Empty(t, got.Users)
	assert.Empty(t, got.Tokens)
}

func TestStore_notMigrated(t *testing.T) {
	s := openSQLite(t, false)

	_, err := s.Load(context.Background())
	assert.True(t, core.IsStoreFatal(err), "a missing schema is fatal: %v", err)
}

func TestMigrate(t *testing.T) {
	s := openSQLite(t, true)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, s.db, "status"))
	require.NoError(t, Migrate(ctx, s.db, "down"))
	require.NoError(t, Migrate(ctx, s.db, "down"))
	_, err := s.Load(ctx)
	assert.True(t, core.IsStoreFatal(err))

	require.NoError(t, Migrate(ctx, s.db, "up"))
	doc, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), doc.Version)

	assert.Error(t, Migrate(ctx, s.db, "lol"))
}

func TestOpen_unknownEngine(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.True(t, core.IsStoreFatal(err))
}

func TestUpsertSuffix(t *testing.T) {
	got := upsertSuffix("token", tokenColumns)
	want := "ON CONFLICT (token) DO UPDATE SET position = EXCLUDED.position, email = EXCLUDED.email, " +
		"kind = EXCLUDED.kind, used = EXCLUDED.used, created_at = EXCLUDED.created_at"
	assert.Equal(t, want, got)
}
