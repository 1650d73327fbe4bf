// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/verification/domain"
)

// Service defines the bytecode check interface for HTTP transport.
type Service interface {
	Check(ctx context.Context, req domain.CheckRequest) (*domain.CheckResult, error)
}

// Handler handles HTTP requests for verification.
type Handler struct {
	svc Service
}

// NewHandler creates a new verification HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the verification routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/check", h.handleCheck)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req CheckRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	result, err := h.svc.Check(r.Context(), req.ToDomain())
	if err != nil {
		switch {
		case errors.Is(err, artifacts.ErrArtifactNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Contract artifact not found")
		case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidContract):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, networks.ErrConfiguration):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Network not configured")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check contract")
		}
		return
	}

	writeJSON(w, http.StatusOK, ToResponse(result))
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
