// Package comment implements the photo comment use cases on top of the
// comment repository: validation, defaults, and the API representation.
package comment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/repository"
	"github.com/photogrid/gallery/internal/telemetry"
	"github.com/photogrid/gallery/internal/validation"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "galleryd/services/comment"

const (
	// DefaultLimit is the page size of a per-photo listing.
	DefaultLimit = 50
	// MaxLimit caps every listing.
	MaxLimit = 500
	// DefaultRecentLimit is the page size of the most recent comments.
	DefaultRecentLimit = 10
	// MaxContentLength is the longest accepted comment, in characters.
	MaxContentLength = 1000

	// DefaultCommenterName is stored when a comment is created without a name.
	DefaultCommenterName = "Anonymous"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ErrNotFound is returned when a comment does not exist.
var ErrNotFound = errors.New("comment not found")

// ValidationError is a client error with a message safe to return as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// ListOptions pages a per-photo listing. Zero values select the defaults.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string
}

type listRules struct {
	Limit   int    `validate:"min=1,max=500"`
	Offset  int    `validate:"min=0"`
	OrderBy string `validate:"oneof=asc desc"`
}

type draftRules struct {
	ID            string `validate:"max=8"`
	PhotoID       string `validate:"required,max=8"`
	Content       string `validate:"notblank,max=1000"`
	CommenterName string `validate:"max=255"`
}

var draftMessages = map[string]string{
	"ID.max":            "Comment ID must be at most 8 characters",
	"PhotoID.required":  "Photo ID is required",
	"PhotoID.max":       "Photo ID must be at most 8 characters",
	"Content.notblank":  "Comment content is required",
	"Content.max":       "Comment must be less than 1000 characters",
	"CommenterName.max": "Commenter name must be at most 255 characters",
}

var listMessages = map[string]string{
	"Limit.min":     "limit must be between 1 and 500",
	"Limit.max":     "limit must be between 1 and 500",
	"Offset.min":    "offset must not be negative",
	"OrderBy.oneof": "orderBy must be asc or desc",
}

// Service implements the comment operations.
type Service struct {
	repo repository.CommentRepository
}

// NewService creates a comment service.
func NewService(repo repository.CommentRepository) *Service {
	return &Service{repo: repo}
}

// List returns a page of the comments on a photo with the photo's total count.
func (s *Service) List(ctx context.Context, photoID string, opts ListOptions) ([]Comment, int, error) {
	if err := validatePhotoID(photoID); err != nil {
		return nil, 0, err
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.OrderBy == "" {
		opts.OrderBy = OrderAsc
	}
	if err := check(&listRules{Limit: opts.Limit, Offset: opts.Offset, OrderBy: opts.OrderBy}, listMessages); err != nil {
		return nil, 0, err
	}

	rows, err := s.repo.ListByPhotoID(ctx, photoID, repository.ListOptions{
		Limit:      opts.Limit,
		Offset:     opts.Offset,
		Descending: opts.OrderBy == OrderDesc,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	count, err := s.repo.CountByPhotoID(ctx, photoID)
	if err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}
	return parseRows(rows), count, nil
}

// Count returns the number of comments on a photo.
func (s *Service) Count(ctx context.Context, photoID string) (int, error) {
	if err := validatePhotoID(photoID); err != nil {
		return 0, err
	}
	count, err := s.repo.CountByPhotoID(ctx, photoID)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

// Get returns one comment.
func (s *Service) Get(ctx context.Context, id string) (Comment, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Comment{}, ErrNotFound
		}
		return Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return ParseCommentFromDB(row), nil
}

// MostRecent returns the newest comments across all photos.
func (s *Service) MostRecent(ctx context.Context, limit int) ([]Comment, error) {
	if limit == 0 {
		limit = DefaultRecentLimit
	}
	if limit < 1 || limit > MaxLimit {
		return nil, invalid(listMessages["Limit.min"])
	}
	rows, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent comments: %w", err)
	}
	return parseRows(rows), nil
}

// Create validates and stores a new comment. Content is trimmed, a missing
// name becomes "Anonymous" and a missing id is generated.
func (s *Service) Create(ctx context.Context, d Draft) (Comment, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "comment.Create",
		attribute.String(telemetry.AttrPhotoID, d.PhotoID),
	)
	defer span.End()

	if err := validateDraft(d); err != nil {
		return Comment{}, err
	}

	d.Content = strings.TrimSpace(d.Content)
	if d.CommenterName == nil || strings.TrimSpace(*d.CommenterName) == "" {
		name := DefaultCommenterName
		d.CommenterName = &name
	}
	if d.ID == "" {
		d.ID = bunx.NewShortID()
	}
	span.SetAttributes(attribute.String(telemetry.AttrCommentID, d.ID))

	row := ConvertCommentToDB(d)
	if err := s.repo.Create(ctx, row); err != nil {
		telemetry.RecordError(span, err)
		return Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return ParseCommentFromDB(row), nil
}

// Update replaces the content and commenter name of an existing comment.
// A nil name clears it.
func (s *Service) Update(ctx context.Context, d Draft) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "comment.Update",
		attribute.String(telemetry.AttrCommentID, d.ID),
	)
	defer span.End()

	if strings.TrimSpace(d.ID) == "" || strings.TrimSpace(d.Content) == "" {
		return invalid("Comment ID and content are required")
	}
	if err := validateDraft(d); err != nil {
		return err
	}

	d.Content = strings.TrimSpace(d.Content)
	if err := s.repo.Update(ctx, ConvertCommentToDB(d)); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

// Delete removes a comment.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("Comment ID is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// DeleteForPhoto removes every comment of a photo, for use when the photo is deleted.
func (s *Service) DeleteForPhoto(ctx context.Context, photoID string) (int64, error) {
	if err := validatePhotoID(photoID); err != nil {
		return 0, err
	}
	n, err := s.repo.DeleteByPhotoID(ctx, photoID)
	if err != nil {
		return 0, fmt.Errorf("delete comments for photo: %w", err)
	}
	return n, nil
}

func validateDraft(d Draft) error {
	rules := draftRules{ID: d.ID, PhotoID: d.PhotoID, Content: d.Content}
	if d.CommenterName != nil {
		rules.CommenterName = *d.CommenterName
	}
	return check(&rules, draftMessages)
}

func validatePhotoID(photoID string) error {
	if photoID == "" {
		return invalid(draftMessages["PhotoID.required"])
	}
	if len([]rune(photoID)) > bunx.ShortIDLength {
		return invalid(draftMessages["PhotoID.max"])
	}
	return nil
}

// check runs the validator and maps the first failure to its message.
func check(rules interface{}, messages map[string]string) error {
	err := validation.ValidateStruct(rules)
	if err == nil {
		return nil
	}
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		return err
	}
	first := verr.First()
	if msg, ok := messages[first.Field+"."+first.Tag]; ok {
		return invalid(msg)
	}
	return invalid(verr.Error())
}
