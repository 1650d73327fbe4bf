package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/verification/domain"
)

// mockService implements Service for testing
type mockService struct {
	results map[string]*domain.CheckResult
	errs    map[string]error
	last    domain.CheckRequest
}

func newMockService() *mockService {
	return &mockService{
		results: make(map[string]*domain.CheckResult),
		errs:    make(map[string]error),
	}
}

func (m *mockService) Check(ctx context.Context, req domain.CheckRequest) (*domain.CheckResult, error) {
	m.last = req
	key := req.Network + "/" + req.Contract
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	if result, ok := m.results[key]; ok {
		return result, nil
	}
	return &domain.CheckResult{
		Network:   req.Network,
		Contract:  req.Contract,
		Address:   req.Address,
		MatchType: "none",
		Message:   "No contract code at address",
	}, nil
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc)
	h.RegisterRoutes(r)
	return r
}

func post(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/check", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Check(t *testing.T) {
	svc := newMockService()
	svc.results["testnetA/Registry"] = &domain.CheckResult{
		Network:   "testnetA",
		Contract:  "contracts/Registry.sol:Registry",
		Address:   "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Match:     true,
		MatchType: "full",
		Message:   "Bytecode matches exactly",
	}

	router := setupRouter(svc)

	t.Run("matching contract", func(t *testing.T) {
		rec := post(router, `{
			"network": "testnetA",
			"contract": "Registry",
			"address": "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		}`)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp CheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Match)
		assert.Equal(t, "full", resp.MatchType)
		assert.Equal(t, "contracts/Registry.sol:Registry", resp.Contract)
		assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", svc.last.Address)
	})

	t.Run("no code", func(t *testing.T) {
		rec := post(router, `{"network": "testnetA", "contract": "Other", "address": "0x5FbDB2315678afecb367f032d93F642f64180aa3"}`)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp CheckResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Match)
		assert.Equal(t, "none", resp.MatchType)
	})
}

func TestHandler_Check_InvalidJSON(t *testing.T) {
	rec := post(setupRouter(newMockService()), "not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestHandler_Check_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown artifact", fmt.Errorf("%w: Missing", artifacts.ErrArtifactNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"bad address", fmt.Errorf("%w: too short", domain.ErrInvalidAddress), http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad contract", fmt.Errorf("%w: empty", domain.ErrInvalidContract), http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown network", fmt.Errorf("%w: unknown network %q", networks.ErrConfiguration, "nowhere"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"anything else", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			svc.errs["testnetA/Registry"] = tt.err

			rec := post(setupRouter(svc), `{"network": "testnetA", "contract": "Registry", "address": "0x01"}`)
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
