package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/hibi/internal/apperr"
)

const maxBodyBytes = 1 << 20

// storageFailureMsg hides vault paths from clients.
const storageFailureMsg = "ノートの保存に失敗しました。"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps domain errors to statuses. Unknown errors are logged and
// reported as 500 without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, apperr.ErrInvalidChoice):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNoCandidates):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("候補が見つかりませんでした。"))
	case errors.Is(err, apperr.ErrSelectionExpired):
		writeJSON(w, http.StatusGone, errorBody("選択の有効期限が切れました。"))
	case errors.Is(err, apperr.ErrSelectionClosed):
		writeJSON(w, http.StatusConflict, errorBody("既に選択済みです。"))
	case apperr.IsStorage(err):
		slog.Error(op+" storage failure", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(storageFailureMsg))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
