package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/ansuz/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// respondErr maps a domain error onto an HTTP status. Unrecognized errors
// become opaque 500s; op names the failed operation in the log line and
// args add log context (slog key-value pairs).
func respondErr(w http.ResponseWriter, op string, err error, args ...any) {
	logErr := func() {
		slog.Error(op+" failed", append(args, slog.String("error", err.Error()))...)
	}
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrAlreadyRecording):
		writeJSON(w, http.StatusConflict, errorBody("a recording is already in progress"))
	case errors.Is(err, apperr.ErrNotRecording):
		writeJSON(w, http.StatusConflict, errorBody("no recording in progress"))
	case errors.Is(err, apperr.ErrStructural),
		errors.Is(err, apperr.ErrCycle),
		errors.Is(err, apperr.ErrDecode):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrCapture):
		logErr()
		writeJSON(w, http.StatusBadGateway, errorBody("audio capture failed"))
	case errors.Is(err, apperr.ErrSourceLoad):
		logErr()
		writeJSON(w, http.StatusBadGateway, errorBody("audio source unavailable"))
	default:
		logErr()
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
