package repository

import (
	"context"
	"errors"
	"time"

	"github.com/photogrid/gallery/internal/db/models"
)

// ErrNotFound is wrapped by every lookup that matched no row.
var ErrNotFound = errors.New("not found")

// ListOptions pages a per-photo comment listing.
type ListOptions struct {
	Limit      int
	Offset     int
	Descending bool
}

// CommentRepository exposes persistence operations for photo comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	// Update replaces content, commenter name and updated_at of the comment with comment.ID.
	Update(ctx context.Context, comment *models.Comment) error
	Delete(ctx context.Context, id string) error
	DeleteByPhotoID(ctx context.Context, photoID string) (int64, error)

	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByPhotoID(ctx context.Context, photoID string, opts ListOptions) ([]models.Comment, error)
	CountByPhotoID(ctx context.Context, photoID string) (int, error)
	ListRecent(ctx context.Context, limit int) ([]models.Comment, error)
}

// UserRepository exposes persistence operations for local accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
	SetPasswordHash(ctx context.Context, id string, passwordHash string) error
}

// SessionRepository exposes persistence operations for local browser sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, id string) error
	Extend(ctx context.Context, id string, expiresAt time.Time) error
	Revoke(ctx context.Context, id string) error
	RevokeByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
