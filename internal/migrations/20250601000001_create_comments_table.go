package migrations

import (
	"context"
	"fmt"

	"github.com/photogrid/gallery/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20250601000001, down_20250601000001)
}

// up_20250601000001 creates the comments table and its per-photo listing index
func up_20250601000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating comments table...")

	_, err := db.NewCreateTable().
		Model((*models.Comment)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create comments table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_comments_photo_created ON comments (photo_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create comments photo index: %w", err)
	}

	fmt.Println(" OK")
	return nil
}

// down_20250601000001 drops the comments table
func down_20250601000001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping comments table...")

	_, err := db.NewDropTable().
		Model((*models.Comment)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop comments table: %w", err)
	}

	fmt.Println(" OK")
	return nil
}
