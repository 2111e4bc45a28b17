package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/nimbus-tasks/assistant/internal/service"
	"github.com/nimbus-tasks/assistant/pkg/logger"
)

const maxBodyBytes = 64 << 10

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid request body")
	}
	return nil
}

// writeServiceError maps service errors onto status codes. Anything
// unexpected is logged and reported without detail.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, notFound, failure string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case service.IsNotFound(err):
		writeError(w, http.StatusNotFound, notFound)
	default:
		log.Error(failure, zap.Error(err))
		writeError(w, http.StatusInternalServerError, failure)
	}
}
