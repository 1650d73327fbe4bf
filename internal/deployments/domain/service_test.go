package domain

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/storage"
	"github.com/pendergraft/contraship/internal/validation"
)

// mockStore implements storage.DeploymentStore for testing
type mockStore struct {
	deployments map[string]*storage.Deployment
	nextID      int
}

func newMockStore() *mockStore {
	return &mockStore{deployments: make(map[string]*storage.Deployment)}
}

func (m *mockStore) RecordDeployment(ctx context.Context, d *storage.Deployment) error {
	for _, existing := range m.deployments {
		if existing.ChainID == d.ChainID && strings.EqualFold(existing.Address, d.Address) {
			return storage.ErrAlreadyExists
		}
	}
	m.nextID++
	d.ID = "deploy-" + string(rune('0'+m.nextID))
	d.CreatedAt = "2026-03-01T12:00:00.000000Z"
	m.deployments[d.ID] = d
	return nil
}

func (m *mockStore) GetDeployment(ctx context.Context, id string) (*storage.Deployment, error) {
	if d, ok := m.deployments[id]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) GetDeploymentByAddress(ctx context.Context, chainID, address string) (*storage.Deployment, error) {
	for _, d := range m.deployments {
		if d.ChainID == chainID && strings.EqualFold(d.Address, address) {
			return d, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error) {
	var deployments []storage.Deployment
	for _, d := range m.deployments {
		if filter.Network != "" && d.Network != filter.Network {
			continue
		}
		deployments = append(deployments, *d)
	}
	return &storage.PaginatedResult[storage.Deployment]{Data: deployments}, nil
}

func (m *mockStore) UpdateVerification(ctx context.Context, id string, update storage.VerificationUpdate) error {
	d, ok := m.deployments[id]
	if !ok {
		return storage.ErrNotFound
	}
	d.VerificationStatus = update.Status
	d.VerificationReason = update.Reason
	if update.Outcome != "" {
		d.Outcome = update.Outcome
	}
	if update.Verified {
		d.VerifiedAt = "2026-03-01T12:05:00.000000Z"
	}
	return nil
}

func testRecord(addr string, chainID uint64) *DeploymentRecord {
	return &DeploymentRecord{
		ContractAddress:    validation.AddressFrom(common.HexToAddress(addr)),
		TransactionHash:    common.HexToHash("0xabcdef"),
		Network:            "testnetA",
		ChainID:            chainID,
		Deployer:           common.HexToAddress(testAccount),
		BlockNumber:        10,
		BlockConfirmations: 1,
		GasUsed:            21000,
		ConstructorArgs:    []byte{0x01, 0x02},
	}
}

func TestService_Record(t *testing.T) {
	tests := []struct {
		name    string
		req     RecordRequest
		wantErr error
	}{
		{
			name: "record valid deployment",
			req: RecordRequest{
				Network:      "testnetA",
				ContractName: "Registry",
				SourcePath:   "src/Registry.sol",
				Record:       testRecord("0x1234567890abcdef1234567890abcdef12345678", 31337),
				Outcome:      "deployed",
			},
		},
		{
			name:    "missing record",
			req:     RecordRequest{Network: "testnetA", ContractName: "Registry"},
			wantErr: ErrInvalidAddress,
		},
		{
			name: "zero address",
			req: RecordRequest{
				Network:      "testnetA",
				ContractName: "Registry",
				Record:       testRecord("0x0000000000000000000000000000000000000000", 31337),
			},
			wantErr: ErrInvalidAddress,
		},
		{
			name: "invalid chain ID",
			req: RecordRequest{
				Network:      "testnetA",
				ContractName: "Registry",
				Record:       testRecord("0x1234567890abcdef1234567890abcdef12345678", 0),
			},
			wantErr: ErrInvalidChainID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMockStore())
			result, err := svc.Record(context.Background(), tt.req)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, result.ID)
			assert.Equal(t, tt.req.Record.ContractAddress.String(), result.Address)
			assert.Equal(t, "31337", result.ChainID)
			assert.Equal(t, "0102", result.ConstructorArgs)
			assert.Equal(t, uint64(21000), result.DeploymentData["gasUsed"])
			assert.Equal(t, 2026, result.CreatedAt.Year())
			assert.False(t, result.Verified)
		})
	}
}

func TestService_RecordDuplicate(t *testing.T) {
	svc := NewService(newMockStore())
	req := RecordRequest{Network: "testnetA", ContractName: "Registry", Record: testRecord("0x1234567890abcdef1234567890abcdef12345678", 1)}

	_, err := svc.Record(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Record(context.Background(), req)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestService_Get(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	_, err := svc.Record(context.Background(), RecordRequest{
		Network: "testnetA", ContractName: "Registry",
		Record: testRecord("0x1234567890abcdef1234567890abcdef12345678", 1),
	})
	require.NoError(t, err)

	t.Run("existing deployment", func(t *testing.T) {
		d, err := svc.Get(context.Background(), "1", "0x1234567890abcdef1234567890abcdef12345678")
		require.NoError(t, err)
		assert.Equal(t, "Registry", d.ContractName)
	})

	t.Run("non-existing deployment", func(t *testing.T) {
		_, err := svc.Get(context.Background(), "1", "0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := svc.Get(context.Background(), "1", "nope")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})

	t.Run("invalid chain ID", func(t *testing.T) {
		_, err := svc.Get(context.Background(), "mainnet", "0x1234567890abcdef1234567890abcdef12345678")
		assert.ErrorIs(t, err, ErrInvalidChainID)
	})

	t.Run("by ID", func(t *testing.T) {
		d, err := svc.GetByID(context.Background(), "deploy-1")
		require.NoError(t, err)
		assert.Equal(t, "Registry", d.ContractName)

		_, err = svc.GetByID(context.Background(), "deploy-9")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_List(t *testing.T) {
	store := newMockStore()
	store.deployments["a"] = &storage.Deployment{ID: "a", Network: "testnetA", ChainID: "1", Address: "0x1234567890abcdef1234567890abcdef12345678"}
	store.deployments["b"] = &storage.Deployment{ID: "b", Network: "polygonMumbai", ChainID: "80001", Address: "0xabcdef1234567890abcdef1234567890abcdef12"}

	svc := NewService(store)

	result, err := svc.List(context.Background(), ListFilter{}, PaginationParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, result.Deployments, 2)

	result, err = svc.List(context.Background(), ListFilter{Network: "polygonMumbai"}, PaginationParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Deployments, 1)
	assert.Equal(t, "b", result.Deployments[0].ID)
}

func TestService_UpdateVerification(t *testing.T) {
	store := newMockStore()
	svc := NewService(store)
	d, err := svc.Record(context.Background(), RecordRequest{
		Network: "testnetA", ContractName: "Registry", Outcome: "deployed",
		Record: testRecord("0x1234567890abcdef1234567890abcdef12345678", 1),
	})
	require.NoError(t, err)

	err = svc.UpdateVerification(context.Background(), d.ID, VerificationResult{Status: "verified", Outcome: "done", Verified: true})
	require.NoError(t, err)

	got, err := svc.GetByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, "done", got.Outcome)
	assert.Equal(t, "verified", got.VerificationStatus)

	err = svc.UpdateVerification(context.Background(), "missing", VerificationResult{Status: "failed"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToDeployment_TimestampParsing(t *testing.T) {
	tests := []struct {
		name         string
		createdAt    string
		wantYear     int
		wantZeroTime bool
	}{
		{"sqlite layout", "2025-06-15T14:30:45.123456Z", 2025, false},
		{"postgres layout", "2024-02-01T10:00:00.5+00:00", 2024, false},
		{"legacy datetime", "2020-01-01 00:00:00", 2020, false},
		{"empty", "", 1, true},
		{"invalid", "invalid-date", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := toDeployment(&storage.Deployment{ID: "test-id", CreatedAt: tt.createdAt})
			if tt.wantZeroTime {
				assert.True(t, d.CreatedAt.IsZero(), "expected zero time for input: %q", tt.createdAt)
			} else {
				assert.Equal(t, tt.wantYear, d.CreatedAt.Year())
			}
			assert.False(t, d.Verified)
		})
	}
}
