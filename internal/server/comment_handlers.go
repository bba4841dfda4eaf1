package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/photogrid/gallery/internal/services/comment"
)

// commentService is the subset of *comment.Service the handlers use.
type commentService interface {
	List(ctx context.Context, photoID string, opts comment.ListOptions) ([]comment.Comment, int, error)
	Count(ctx context.Context, photoID string) (int, error)
	Get(ctx context.Context, id string) (comment.Comment, error)
	MostRecent(ctx context.Context, limit int) ([]comment.Comment, error)
	Create(ctx context.Context, d comment.Draft) (comment.Comment, error)
	Update(ctx context.Context, d comment.Draft) error
	Delete(ctx context.Context, id string) error
	DeleteForPhoto(ctx context.Context, photoID string) (int64, error)
}

var _ commentService = (*comment.Service)(nil)

type listCommentsResponse struct {
	Comments []comment.Comment `json:"comments"`
	Count    int               `json:"count"`
}

type recentCommentsResponse struct {
	Comments []comment.Comment `json:"comments"`
}

type countResponse struct {
	Count int `json:"count"`
}

type commentRequest struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	CommenterName *string `json:"commenterName,omitempty"`
}

// MountCommentRoutes mounts the comment API on r, relative to /api.
func MountCommentRoutes(r chi.Router, svc commentService) {
	r.Route("/comments", func(r chi.Router) {
		r.Get("/", HandleRecentComments(svc))
		r.Route("/{photoId}", func(r chi.Router) {
			r.Get("/", HandleListComments(svc))
			r.Post("/", HandleCreateComment(svc))
			r.Put("/", HandleUpdateComment(svc))
			r.Delete("/", HandleDeleteComment(svc))
			r.Get("/count", HandleCountComments(svc))
			r.Delete("/all", HandleDeletePhotoComments(svc))
			r.Get("/{commentId}", HandleGetComment(svc))
		})
	})
}

// HandleListComments returns a page of a photo's comments and their total.
func HandleListComments(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, ok := intParam(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		offset, ok := intParam(w, q.Get("offset"), "offset")
		if !ok {
			return
		}

		comments, count, err := svc.List(r.Context(), chi.URLParam(r, "photoId"), comment.ListOptions{
			Limit:   limit,
			Offset:  offset,
			OrderBy: q.Get("orderBy"),
		})
		if err != nil {
			writeCommentError(w, r, err, "Failed to fetch comments")
			return
		}
		writeJSON(w, http.StatusOK, listCommentsResponse{Comments: comments, Count: count})
	}
}

// HandleCountComments returns the number of comments on a photo.
func HandleCountComments(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.Count(r.Context(), chi.URLParam(r, "photoId"))
		if err != nil {
			writeCommentError(w, r, err, "Failed to count comments")
			return
		}
		writeJSON(w, http.StatusOK, countResponse{Count: count})
	}
}

// HandleGetComment returns one comment of a photo.
func HandleGetComment(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.Get(r.Context(), chi.URLParam(r, "commentId"))
		if err == nil && c.PhotoID != chi.URLParam(r, "photoId") {
			err = comment.ErrNotFound
		}
		if err != nil {
			writeCommentError(w, r, err, "Failed to fetch comment")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// HandleRecentComments returns the newest comments across all photos.
func HandleRecentComments(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
		if !ok {
			return
		}
		comments, err := svc.MostRecent(r.Context(), limit)
		if err != nil {
			writeCommentError(w, r, err, "Failed to fetch comments")
			return
		}
		writeJSON(w, http.StatusOK, recentCommentsResponse{Comments: comments})
	}
}

// HandleCreateComment adds a comment to a photo.
func HandleCreateComment(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commentRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		_, err := svc.Create(r.Context(), req.draft(chi.URLParam(r, "photoId")))
		if err != nil {
			writeCommentError(w, r, err, "Failed to create comment")
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// HandleUpdateComment replaces a comment's content and commenter name.
func HandleUpdateComment(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commentRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := svc.Update(r.Context(), req.draft(chi.URLParam(r, "photoId"))); err != nil {
			writeCommentError(w, r, err, "Failed to update comment")
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// HandleDeleteComment removes the comment named by the id query parameter.
func HandleDeleteComment(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), r.URL.Query().Get("id")); err != nil {
			writeCommentError(w, r, err, "Failed to delete comment")
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

// HandleDeletePhotoComments removes every comment of a photo.
func HandleDeletePhotoComments(svc commentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.DeleteForPhoto(r.Context(), chi.URLParam(r, "photoId")); err != nil {
			writeCommentError(w, r, err, "Failed to delete comments")
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	}
}

func (req commentRequest) draft(photoID string) comment.Draft {
	return comment.Draft{
		ID:            req.ID,
		PhotoID:       photoID,
		Content:       req.Content,
		CommenterName: req.CommenterName,
	}
}

// writeCommentError maps service errors to responses. Only validation messages
// reach the client.
func writeCommentError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var verr *comment.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, comment.ErrNotFound):
		writeError(w, http.StatusNotFound, "Comment not found")
	default:
		writeInternal(w, r, err, message)
	}
}

// intParam parses an optional integer query parameter. Empty means zero.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}
