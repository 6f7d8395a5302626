// Package http provides HTTP utilities including chi-compatible error handling
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/spantoken/bridge-hub/pkg/app/errors"
)

// HandlerFunc defines a function that returns an error for clean error handling
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// HandleError wraps an error-returning HandlerFunc into a standard http.HandlerFunc
// This allows using clean error-returning handlers with any router (chi, http.ServeMux, etc.)
//
// Usage with chi:
//
//	r.Post("/transfers", http.HandleError(handler.createTransfer))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(w, err)
		}
	}
}

type errorResponse struct {
	ErrMsg  string `json:"error"`
	Kind    string `json:"kind"`
	ErrCode int    `json:"code"`
}

// DefaultErrorHandler maps taxonomy errors to their HTTP status with a
// stable kind string in the body; anything else becomes a 500.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	var bridgeErr *apperrors.Error
	if errors.As(err, &bridgeErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(bridgeErr.StatusCode())
		_ = json.NewEncoder(w).Encode(&errorResponse{
			ErrMsg:  bridgeErr.Message,
			Kind:    bridgeErr.Kind.String(),
			ErrCode: bridgeErr.StatusCode(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(&errorResponse{
		ErrMsg:  "Unexpected Service Error",
		Kind:    apperrors.KindInternal.String(),
		ErrCode: http.StatusInternalServerError,
	})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
