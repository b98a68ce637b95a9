package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kalambet/wxtodo/internal/extract"
	"github.com/kalambet/wxtodo/internal/items"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Error types carried in the JSON error envelope.
const (
	errInvalidRequest = "invalid_request_error"
	errNotFound       = "not_found_error"
	errUnavailable    = "extraction_unavailable"
	errAPI            = "api_error"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// writeDomainError maps pipeline and store errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, items.ErrValidation):
		httpError(w, http.StatusBadRequest, errInvalidRequest, "%v", err)
	case errors.Is(err, items.ErrNotFound):
		httpError(w, http.StatusNotFound, errNotFound, "%v", err)
	case errors.Is(err, extract.ErrUnavailable):
		httpError(w, http.StatusBadGateway, errUnavailable, "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, errAPI, "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
