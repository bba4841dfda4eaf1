package server

import (
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/photogrid/gallery/internal/logging"
	"github.com/photogrid/gallery/internal/storage"
)

const imageCacheControl = "private, max-age=3600, must-revalidate"

// MountImageRoutes mounts the private image routes on r, relative to /api.
// Keys may contain slashes or be full object URLs.
func MountImageRoutes(r chi.Router, store storage.Store) {
	r.Get("/protected-image/*", HandleProtectedImage(store))
	r.Get("/presigned-url/*", HandlePresignedURL(store))
}

// HandleProtectedImage streams a private original from the object store.
func HandleProtectedImage(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := objectKey(r)
		if key == "" {
			writeError(w, http.StatusBadRequest, "Missing key parameter")
			return
		}

		obj, err := store.Get(r.Context(), key)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("error serving image")
			http.Error(w, "Error serving image", http.StatusInternalServerError)
			return
		}
		defer obj.Body.Close()

		h := w.Header()
		h.Set("Content-Type", obj.ContentType)
		if obj.ContentLength > 0 {
			h.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
		}
		h.Set("Cache-Control", imageCacheControl)
		h.Set("Content-Disposition", "inline")
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, obj.Body); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("key", key).Msg("image stream interrupted")
		}
	}
}

// HandlePresignedURL returns a short-lived download URL as plain text.
func HandlePresignedURL(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := objectKey(r)
		if key == "" {
			writeError(w, http.StatusBadRequest, "Missing key parameter")
			return
		}

		signed, err := store.PresignGet(r.Context(), key)
		if err != nil {
			writeInternal(w, r, err, "Failed to generate pre-signed URL")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = io.WriteString(w, signed)
	}
}

// objectKey returns the wildcard key. chi matches on the raw path, so an
// escaped object URL arrives still escaped.
func objectKey(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}
