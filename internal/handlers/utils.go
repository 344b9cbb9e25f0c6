package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/covidtrack/apiserver/internal/services"
	"github.com/covidtrack/apiserver/internal/store"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextUserIDKey contextKey = "userID"

// ErrorResponse is the error payload. Fields is set for validation errors.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// MessageResponse carries a plain confirmation message.
type MessageResponse struct {
	Msg string `json:"msg"`
}

func withUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, contextUserIDKey, userID)
}

func userIDFromContext(ctx context.Context) (int, error) {
	userID, ok := ctx.Value(contextUserIDKey).(int)
	if !ok {
		return 0, errors.New("missing subject")
	}
	if userID < 1 {
		return 0, errors.New("invalid subject")
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service and store errors onto HTTP responses.
// Anything unrecognised is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Data not found")
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// decodeObject reads a JSON object body. Numbers are kept as json.Number so
// validation sees the value as sent.
func decodeObject(r *http.Request) (map[string]any, error) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("decode body: expected a JSON object")
	}
	return raw, nil
}
