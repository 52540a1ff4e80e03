package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"medmine/medmine/controllers"
	"medmine/medmine/services/ingest"
	"medmine/medmine/utils/logging"
	"medmine/medmine/utils/types"

	"go.uber.org/zap"
)

// handleJSON writes the handler's result as JSON, or its error as {detail}.
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			writeError(w, r, status, err)
			return
		}
		writeJSON(w, status, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status when status is 0.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status == 0 {
		status = statusFor(err)
	}
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		logging.ErrorLogger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		var ae *controllers.AssistantError
		if status == http.StatusInternalServerError && !errors.As(err, &ae) {
			detail = "internal server error"
		}
	}
	writeJSON(w, status, types.ErrorResponse{Detail: detail})
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	var ae *controllers.AssistantError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrNoHeader), errors.Is(err, ingest.ErrInvalidFile),
		errors.Is(err, controllers.ErrEmptyMessage), errors.Is(err, controllers.ErrNoSession):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrBatchNotFound), errors.Is(err, ingest.ErrNotArchived),
		errors.Is(err, controllers.ErrChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrQueueFull), errors.Is(err, ingest.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &ae):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
