package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/photogrid/gallery/internal/logging"
)

// maxBodyBytes bounds every JSON or form request body.
const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success    bool   `json:"success"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeInternal logs err and answers 500 with a generic message.
func writeInternal(w http.ResponseWriter, r *http.Request, err error, message string) {
	logging.Ctx(r.Context()).Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(message)
	writeError(w, http.StatusInternalServerError, message)
}

var errBadBody = errors.New("invalid request body")

// decodeBody reads a JSON body, or a url-encoded or multipart form into the
// json-tagged string fields listed in fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, fields ...string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return fmt.Errorf("%w: %v", errBadBody, err)
		}
		values := make(map[string]string, len(fields))
		for _, f := range fields {
			if v := r.PostForm.Get(f); v != "" {
				values[f] = v
			}
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("%w: %v", errBadBody, err)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: %v", errBadBody, err)
		}
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
