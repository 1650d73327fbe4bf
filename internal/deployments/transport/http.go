// Package transport provides HTTP handlers for the deployments domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/contraship/internal/deployments/domain"
)

// Service defines the deployment history interface for HTTP transport.
type Service interface {
	Get(ctx context.Context, chainID, address string) (*domain.Deployment, error)
	GetByID(ctx context.Context, id string) (*domain.Deployment, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
}

// Handler handles HTTP requests for deployments.
type Handler struct {
	svc Service
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the read-only history routes. Deployments are
// only ever recorded by the deploy command, never over HTTP.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/id/{id}", h.handleGetByID)
	r.Get("/{chainId}/{address}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	var verified *bool
	if v := q.Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "verified must be true or false")
			return
		}
		verified = &b
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		Network:  q.Get("network"),
		ChainID:  q.Get("chain_id"),
		Contract: q.Get("contract"),
		Verified: verified,
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deployments")
		return
	}

	data := make([]DeploymentItem, len(result.Deployments))
	for i, d := range result.Deployments {
		data[i] = ToItem(d)
	}

	writeJSON(w, http.StatusOK, DeploymentListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chainId")
	address := chi.URLParam(r, "address")

	deployment, err := h.svc.Get(r.Context(), chainID, address)
	h.respond(w, deployment, err)
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	deployment, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	h.respond(w, deployment, err)
}

func (h *Handler) respond(w http.ResponseWriter, deployment *domain.Deployment, err error) {
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
		case errors.Is(err, domain.ErrInvalidAddress), errors.Is(err, domain.ErrInvalidChainID):
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		}
		return
	}

	writeJSON(w, http.StatusOK, ToResponse(deployment))
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
