package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/photogrid/gallery/internal/db/models"
	"github.com/uptrace/bun"
)

// BunCommentRepository implements CommentRepository using Bun ORM.
// Every query goes through the retry policy.
type BunCommentRepository struct {
	db     *bun.DB
	policy RetryPolicy
}

// NewBunCommentRepository creates a new Bun-based comment repository
func NewBunCommentRepository(db *bun.DB, policy RetryPolicy) *BunCommentRepository {
	return &BunCommentRepository{db: db, policy: policy}
}

// Create inserts a new comment. Zero timestamps are stamped with the current time.
func (r *BunCommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if err := comment.ValidateForCreate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	if comment.UpdatedAt.IsZero() {
		comment.UpdatedAt = now
	}

	return r.policy.run(ctx, "create comment", func(ctx context.Context) error {
		_, err := r.db.NewInsert().
			Model(comment).
			Exec(ctx)
		return err
	})
}

// Update replaces content and commenter name and stamps updated_at.
// A missing id is not an error.
func (r *BunCommentRepository) Update(ctx context.Context, comment *models.Comment) error {
	comment.UpdatedAt = time.Now().UTC()

	return r.policy.run(ctx, "update comment", func(ctx context.Context) error {
		_, err := r.db.NewUpdate().
			Model((*models.Comment)(nil)).
			Set("content = ?", comment.Content).
			Set("commenter_name = ?", comment.CommenterName).
			Set("updated_at = ?", comment.UpdatedAt).
			Where("id = ?", comment.ID).
			Exec(ctx)
		return err
	})
}

// Delete removes a comment by id. A missing id is not an error.
func (r *BunCommentRepository) Delete(ctx context.Context, id string) error {
	return r.policy.run(ctx, "delete comment", func(ctx context.Context) error {
		_, err := r.db.NewDelete().
			Model((*models.Comment)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		return err
	})
}

// DeleteByPhotoID removes every comment of a photo and returns how many were deleted.
func (r *BunCommentRepository) DeleteByPhotoID(ctx context.Context, photoID string) (int64, error) {
	var deleted int64
	err := r.policy.run(ctx, "delete comments for photo", func(ctx context.Context) error {
		result, err := r.db.NewDelete().
			Model((*models.Comment)(nil)).
			Where("photo_id = ?", photoID).
			Exec(ctx)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// GetByID retrieves a comment by id
func (r *BunCommentRepository) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	var comment *models.Comment
	err := r.policy.run(ctx, "get comment", func(ctx context.Context) error {
		row := new(models.Comment)
		err := r.db.NewSelect().
			Model(row).
			Where("id = ?", id).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("comment %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		comment = row
		return nil
	})
	return comment, err
}

// ListByPhotoID pages through the comments of a photo ordered by creation time.
func (r *BunCommentRepository) ListByPhotoID(ctx context.Context, photoID string, opts ListOptions) ([]models.Comment, error) {
	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}

	var comments []models.Comment
	err := r.policy.run(ctx, "list comments", func(ctx context.Context) error {
		comments = nil
		return r.db.NewSelect().
			Model(&comments).
			Where("photo_id = ?", photoID).
			OrderExpr("created_at " + direction + ", id " + direction).
			Limit(opts.Limit).
			Offset(opts.Offset).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments, nil
}

// CountByPhotoID returns the number of comments on a photo
func (r *BunCommentRepository) CountByPhotoID(ctx context.Context, photoID string) (int, error) {
	var count int
	err := r.policy.run(ctx, "count comments", func(ctx context.Context) error {
		n, err := r.db.NewSelect().
			Model((*models.Comment)(nil)).
			Where("photo_id = ?", photoID).
			Count(ctx)
		count = n
		return err
	})
	return count, err
}

// ListRecent returns the newest comments across all photos.
func (r *BunCommentRepository) ListRecent(ctx context.Context, limit int) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.policy.run(ctx, "list recent comments", func(ctx context.Context) error {
		comments = nil
		return r.db.NewSelect().
			Model(&comments).
			OrderExpr("created_at DESC, id DESC").
			Limit(limit).
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments, nil
}
