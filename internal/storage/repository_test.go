package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// newTestDB opens a migrated sqlite database in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	require.NoError(t, RunMigrations(db, log))

	return db
}

// createTestListing inserts a listing and returns it.
func createTestListing(t *testing.T, db *DB, cloudbedsID, name string) int64 {
	t.Helper()

	repo := NewListingRepository(db)
	listing, created, err := repo.Upsert(context.Background(), cloudbedsID, name, Slugify(name), "UTC")
	require.NoError(t, err)
	require.True(t, created)
	return listing.ID
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	require.NoError(t, RunMigrations(db, log))
}
