package comment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/photogrid/gallery/internal/db/bunx"
	"github.com/photogrid/gallery/internal/db/models"
	"github.com/photogrid/gallery/internal/migrations"
	"github.com/photogrid/gallery/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	return NewService(repository.NewBunCommentRepository(db, repository.RetryPolicy{}))
}

func strPtr(s string) *string { return &s }

func requireValidation(t *testing.T, err error, msg string) {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, msg, verr.Message)
}

func TestService_Create(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("defaults name and id and trims content", func(t *testing.T) {
		c, err := svc.Create(ctx, Draft{PhotoID: "photo001", Content: "  nice shot  "})
		require.NoError(t, err)
		assert.Len(t, c.ID, bunx.ShortIDLength)
		assert.Equal(t, "nice shot", c.Content)
		require.NotNil(t, c.CommenterName)
		assert.Equal(t, DefaultCommenterName, *c.CommenterName)
		assert.False(t, c.CreatedAt.IsZero())

		got, err := svc.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Content, got.Content)
	})

	t.Run("keeps a given id and name", func(t *testing.T) {
		c, err := svc.Create(ctx, Draft{ID: "given001", PhotoID: "photo001", Content: "hi", CommenterName: strPtr("Ada")})
		require.NoError(t, err)
		assert.Equal(t, "given001", c.ID)
		assert.Equal(t, "Ada", *c.CommenterName)
	})

	t.Run("blank name becomes anonymous", func(t *testing.T) {
		c, err := svc.Create(ctx, Draft{PhotoID: "photo001", Content: "hi", CommenterName: strPtr("  ")})
		require.NoError(t, err)
		assert.Equal(t, DefaultCommenterName, *c.CommenterName)
	})
}

func TestService_CreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		draft Draft
		want  string
	}{
		{"empty content", Draft{PhotoID: "photo001", Content: ""}, "Comment content is required"},
		{"blank content", Draft{PhotoID: "photo001", Content: " \n\t "}, "Comment content is required"},
		{"too long", Draft{PhotoID: "photo001", Content: strings.Repeat("a", 1001)}, "Comment must be less than 1000 characters"},
		{"too many runes", Draft{PhotoID: "photo001", Content: strings.Repeat("é", 1001)}, "Comment must be less than 1000 characters"},
		{"missing photo", Draft{Content: "hi"}, "Photo ID is required"},
		{"long photo id", Draft{PhotoID: "photo0001", Content: "hi"}, "Photo ID must be at most 8 characters"},
		{"long comment id", Draft{ID: "comment01", PhotoID: "photo001", Content: "hi"}, "Comment ID must be at most 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.draft)
			requireValidation(t, err, tt.want)
		})
	}
}

func TestService_ContentLengthBoundary(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, Draft{PhotoID: "photo001", Content: strings.Repeat("é", MaxContentLength)})
	require.NoError(t, err)
	assert.Equal(t, MaxContentLength, len([]rune(c.Content)))

	_, err = svc.Create(ctx, Draft{PhotoID: "photo001", Content: strings.Repeat("é", MaxContentLength+1)})
	requireValidation(t, err, "Comment must be less than 1000 characters")
}

func TestService_ListAndCount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		_, err := svc.Create(ctx, Draft{ID: "c000000" + string(rune('a'+i)), PhotoID: "photoAAA", Content: content})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := svc.Create(ctx, Draft{PhotoID: "photoBBB", Content: "other"})
	require.NoError(t, err)

	comments, total, err := svc.List(ctx, "photoAAA", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, comments, 3)
	assert.Equal(t, "first", comments[0].Content)

	comments, total, err = svc.List(ctx, "photoAAA", ListOptions{Limit: 2, OrderBy: OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, comments, 2)
	assert.Equal(t, "third", comments[0].Content)

	comments, _, err = svc.List(ctx, "photoAAA", ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "third", comments[0].Content)

	count, err := svc.Count(ctx, "photoBBB")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	recent, err := svc.MostRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
	assert.Equal(t, "other", recent[0].Content)
}

func TestService_ListValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		photoID string
		opts    ListOptions
		want    string
	}{
		{"negative limit", "photo001", ListOptions{Limit: -1}, "limit must be between 1 and 500"},
		{"limit above max", "photo001", ListOptions{Limit: 501}, "limit must be between 1 and 500"},
		{"negative offset", "photo001", ListOptions{Offset: -1}, "offset must not be negative"},
		{"bad order", "photo001", ListOptions{OrderBy: "sideways"}, "orderBy must be asc or desc"},
		{"missing photo", "", ListOptions{}, "Photo ID is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.List(ctx, tt.photoID, tt.opts)
			requireValidation(t, err, tt.want)
		})
	}

	_, err := svc.MostRecent(ctx, MaxLimit+1)
	requireValidation(t, err, "limit must be between 1 and 500")
}

func TestService_Update(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, Draft{PhotoID: "photo001", Content: "before", CommenterName: strPtr("Ada")})
	require.NoError(t, err)

	d := c.Draft()
	d.Content = "  after "
	require.NoError(t, svc.Update(ctx, d))

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Content)
	assert.Equal(t, "Ada", *got.CommenterName)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	t.Run("requires id and content", func(t *testing.T) {
		requireValidation(t, svc.Update(ctx, Draft{PhotoID: "photo001", Content: "x"}), "Comment ID and content are required")
		requireValidation(t, svc.Update(ctx, Draft{ID: c.ID, PhotoID: "photo001", Content: "  "}), "Comment ID and content are required")
	})

	t.Run("rejects long content", func(t *testing.T) {
		err := svc.Update(ctx, Draft{ID: c.ID, PhotoID: "photo001", Content: strings.Repeat("a", 1001)})
		requireValidation(t, err, "Comment must be less than 1000 characters")
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		require.NoError(t, svc.Update(ctx, Draft{ID: "missing1", PhotoID: "photo001", Content: "x"}))
		require.NoError(t, svc.Delete(ctx, "missing1"))

		count, err := svc.Count(ctx, "photo001")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestService_DeleteForPhoto(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, Draft{PhotoID: "photoDEL", Content: "bye"})
		require.NoError(t, err)
	}
	keep, err := svc.Create(ctx, Draft{PhotoID: "photoKEP", Content: "stay"})
	require.NoError(t, err)

	n, err := svc.DeleteForPhoto(ctx, "photoDEL")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	comments, total, err := svc.List(ctx, "photoDEL", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, comments)
	assert.Zero(t, total)

	_, err = svc.Get(ctx, keep.ID)
	require.NoError(t, err)

	requireValidation(t, svc.Delete(ctx, ""), "Comment ID is required")
	require.NoError(t, svc.Delete(ctx, keep.ID))
	_, err = svc.Get(ctx, keep.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversionRoundTrip(t *testing.T) {
	row := &models.Comment{
		ID:            "abcd1234",
		PhotoID:       "photo001",
		Content:       "hello",
		CommenterName: strPtr("Ada"),
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	back := ConvertCommentToDB(ParseCommentFromDB(row).Draft())

	assert.Equal(t, row.ID, back.ID)
	assert.Equal(t, row.PhotoID, back.PhotoID)
	assert.Equal(t, row.Content, back.Content)
	assert.Equal(t, row.CommenterName, back.CommenterName)
	assert.False(t, back.CreatedAt.IsZero())
}

type failingRepo struct {
	repository.CommentRepository
	err error
}

func (f failingRepo) GetByID(context.Context, string) (*models.Comment, error) { return nil, f.err }

func (f failingRepo) Create(context.Context, *models.Comment) error { return f.err }

func TestService_RepositoryErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("database is locked")
	svc := NewService(failingRepo{err: boom})

	_, err := svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = svc.Create(ctx, Draft{PhotoID: "photo001", Content: "hi"})
	assert.ErrorIs(t, err, boom)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))

	svc = NewService(failingRepo{err: repository.ErrNotFound})
	_, err = svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}
