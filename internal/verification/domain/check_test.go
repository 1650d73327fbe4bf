package domain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
)

type mockNetworks map[string]networks.NetworkConfig

func (m mockNetworks) Resolve(name string) (networks.NetworkConfig, error) {
	if n, ok := m[name]; ok {
		return n, nil
	}
	return networks.NetworkConfig{}, networks.ErrConfiguration
}

type mockArtifacts map[string]*artifacts.ContractArtifact

func (m mockArtifacts) Resolve(name validation.ContractName) (*artifacts.ContractArtifact, error) {
	if a, ok := m[name.Name()]; ok {
		return a, nil
	}
	return nil, artifacts.ErrArtifactNotFound
}

type mockReader struct {
	code   []byte
	err    error
	closed bool
}

func (m *mockReader) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return m.code, m.err
}

func (m *mockReader) Close() { m.closed = true }

const checkAddress = "0x1234567890123456789012345678901234567890"

// runtime code followed by a CBOR metadata section
var (
	runtimeCode   = common.FromHex("0x608060405234801561001057600080fd")
	withMetadataA = append(append([]byte{}, runtimeCode...), common.FromHex("0x0033a264697066735822aaaa")...)
	withMetadataB = append(append([]byte{}, runtimeCode...), common.FromHex("0x0033a264697066735822bbbb")...)
)

func newTestChecker(reader *mockReader, dialErr error) *Checker {
	nets := mockNetworks{"testnetA": {Name: "testnetA", RPCURL: "http://localhost:8545"}}
	arts := mockArtifacts{"Registry": {Name: "Registry", SourcePath: "src/Registry.sol", DeployedBytecode: withMetadataA}}
	dial := func(ctx context.Context, rpcURL string) (CodeReader, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return reader, nil
	}
	return NewChecker(nets, arts, dial)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		code      []byte
		readErr   error
		dialErr   error
		wantMatch bool
		wantType  string
		wantMsg   string
	}{
		{"full match", withMetadataA, nil, nil, true, "full", "exactly"},
		{"metadata differs", withMetadataB, nil, nil, true, "partial", ""},
		{"different code", common.FromHex("0x6001600055"), nil, nil, false, "none", ""},
		{"no code", nil, nil, nil, false, "none", "No code"},
		{"fetch error", nil, errors.New("RPC connection failed"), nil, false, "none", "Failed to fetch on-chain bytecode"},
		{"dial error", nil, nil, errors.New("refused"), false, "none", "Failed to connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &mockReader{code: tt.code, err: tt.readErr}
			result, err := newTestChecker(reader, tt.dialErr).Check(context.Background(), CheckRequest{
				Network:  "testnetA",
				Contract: "Registry",
				Address:  checkAddress,
			})

			require.NoError(t, err)
			assert.Equal(t, tt.wantMatch, result.Match)
			assert.Equal(t, tt.wantType, result.MatchType)
			assert.Contains(t, result.Message, tt.wantMsg)
			assert.Equal(t, "src/Registry.sol:Registry", result.Contract)
			if tt.dialErr == nil {
				assert.True(t, reader.closed)
			}
		})
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     CheckRequest
		wantErr error
	}{
		{"invalid address", CheckRequest{Network: "testnetA", Contract: "Registry", Address: "invalid-address"}, ErrInvalidAddress},
		{"invalid contract", CheckRequest{Network: "testnetA", Contract: "../Registry", Address: checkAddress}, ErrInvalidContract},
		{"unknown network", CheckRequest{Network: "mainnet", Contract: "Registry", Address: checkAddress}, networks.ErrConfiguration},
		{"unknown contract", CheckRequest{Network: "testnetA", Contract: "NFTFactory", Address: checkAddress}, artifacts.ErrArtifactNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestChecker(&mockReader{}, nil).Check(context.Background(), tt.req)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
