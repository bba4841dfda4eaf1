package repository

import (
	"context"
	"testing"

	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/migrations"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// setupTestDB opens an in-memory SQLite database with every migration applied.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db := setupEmptyDB(t)
	_, err := migrations.Apply(context.Background(), db)
	require.NoError(t, err)
	return db
}

// setupEmptyDB opens an in-memory SQLite database without any tables.
func setupEmptyDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := bunx.NewDB(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	return db
}

func strPtr(s string) *string { return &s }
