package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/deployments/domain"
)

// mockService implements Service for testing
type mockService struct {
	deployments map[string]*domain.Deployment
	lastFilter  domain.ListFilter
	lastPage    domain.PaginationParams
	listErr     error
}

func newMockService() *mockService {
	return &mockService{
		deployments: make(map[string]*domain.Deployment),
	}
}

func (m *mockService) Get(ctx context.Context, chainID, address string) (*domain.Deployment, error) {
	if address == "bad" {
		return nil, fmt.Errorf("%w: bad", domain.ErrInvalidAddress)
	}
	for _, d := range m.deployments {
		if d.ChainID == chainID && d.Address == address {
			return d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockService) GetByID(ctx context.Context, id string) (*domain.Deployment, error) {
	if d, ok := m.deployments[id]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockService) List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error) {
	m.lastFilter = filter
	m.lastPage = pagination
	if m.listErr != nil {
		return nil, m.listErr
	}
	var deployments []domain.Deployment
	for _, d := range m.deployments {
		deployments = append(deployments, *d)
	}
	return &domain.ListResult{Deployments: deployments, HasMore: true, NextCursor: "next"}, nil
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc)
	r.Route("/deployments", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func seeded() *mockService {
	svc := newMockService()
	verifiedAt := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	svc.deployments["deploy-1"] = &domain.Deployment{
		ID:           "deploy-1",
		Network:      "testnetA",
		ChainID:      "1",
		Address:      "0x1234567890abcdef1234567890abcdef12345678",
		ContractName: "Registry",
		Outcome:      "done",
		Verified:     true,
		VerifiedAt:   &verifiedAt,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	return svc
}

func TestHandler_List(t *testing.T) {
	svc := seeded()
	router := setupRouter(svc)

	req := httptest.NewRequest("GET", "/deployments/?network=testnetA&contract=Registry&chain_id=1&verified=true&limit=5&cursor=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp DeploymentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Registry", resp.Data[0].ContractName)
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.Data[0].CreatedAt)
	assert.Equal(t, 5, resp.Pagination.Limit)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, "next", resp.Pagination.NextCursor)

	assert.Equal(t, "testnetA", svc.lastFilter.Network)
	assert.Equal(t, "Registry", svc.lastFilter.Contract)
	assert.Equal(t, "1", svc.lastFilter.ChainID)
	require.NotNil(t, svc.lastFilter.Verified)
	assert.True(t, *svc.lastFilter.Verified)
	assert.Equal(t, domain.PaginationParams{Limit: 5, Cursor: "abc"}, svc.lastPage)
}

func TestHandler_ListLimits(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"?limit=0", 20},
		{"?limit=101", 20},
		{"?limit=abc", 20},
		{"?limit=100", 100},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := newMockService()
			rec := httptest.NewRecorder()
			setupRouter(svc).ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/"+tt.query, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, svc.lastPage.Limit)
		})
	}
}

func TestHandler_ListErrors(t *testing.T) {
	t.Run("bad verified flag", func(t *testing.T) {
		rec := httptest.NewRecorder()
		setupRouter(newMockService()).ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/?verified=maybe", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := newMockService()
		svc.listErr = fmt.Errorf("disk on fire")
		rec := httptest.NewRecorder()
		setupRouter(svc).ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "disk on fire")
	})
}

func TestHandler_Get(t *testing.T) {
	router := setupRouter(seeded())

	t.Run("existing deployment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/1/0x1234567890abcdef1234567890abcdef12345678", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp DeploymentResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "1", resp.ChainID)
		assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", resp.Address)
		assert.True(t, resp.Verified)
		assert.Equal(t, "2026-03-01T12:05:00Z", resp.VerifiedAt)
	})

	t.Run("by ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/id/deploy-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-existing deployment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/1/0x0000000000000000000000000000000000000001", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid address", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/1/bad", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
