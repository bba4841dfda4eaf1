package migrations

import (
	"context"
	"testing"

	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"
)

func TestApply_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	defer bunx.Close(db)

	require.True(t, IsSQLite(db))
	assert.False(t, IsPostgreSQL(db))

	group, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.NotZero(t, group)

	for _, table := range []string{"comments", "users", "sessions"} {
		_, err := db.NewSelect().Table(table).Limit(1).Exec(ctx)
		assert.NoError(t, err, "table %s should exist", table)
	}

	group, err = Apply(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, group, "second run has nothing to apply")

	migrator := migrate.NewMigrator(db, Migrations)
	rolledBack, err := migrator.Rollback(ctx)
	require.NoError(t, err)
	assert.NotZero(t, rolledBack.ID)

	_, err = db.NewSelect().Table("comments").Limit(1).Exec(ctx)
	assert.Error(t, err)
}
