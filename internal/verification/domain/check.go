package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
)

// Common errors returned by the checker.
var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidContract = errors.New("invalid contract name")
)

// CodeReader reads deployed runtime code
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

// CodeDialer connects to a network's RPC endpoint for reading code
type CodeDialer func(ctx context.Context, rpcURL string) (CodeReader, error)

// NetworkResolver looks up network configuration by name.
type NetworkResolver interface {
	Resolve(name string) (networks.NetworkConfig, error)
}

// ArtifactResolver looks up compiled contracts by name.
type ArtifactResolver interface {
	Resolve(name validation.ContractName) (*artifacts.ContractArtifact, error)
}

// CheckRequest names a deployed contract to compare with its artifact
type CheckRequest struct {
	Network  string `json:"network"`
	Contract string `json:"contract"`
	Address  string `json:"address"`
}

// Checker compares on-chain runtime code with compiled artifacts
type Checker struct {
	networks  NetworkResolver
	artifacts ArtifactResolver
	dial      CodeDialer
}

// DialCode dials rpcURL with ethclient
func DialCode(ctx context.Context, rpcURL string) (CodeReader, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewChecker creates a new checker. A nil dial uses DialCode.
func NewChecker(networks NetworkResolver, artifacts ArtifactResolver, dial CodeDialer) *Checker {
	if dial == nil {
		dial = DialCode
	}
	return &Checker{networks: networks, artifacts: artifacts, dial: dial}
}

// Check verifies a deployed contract matches the local artifact.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	address, err := validation.ParseAddress(req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	name, err := validation.ParseContractName(req.Contract)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContract, err)
	}

	net, err := c.networks.Resolve(req.Network)
	if err != nil {
		return nil, err
	}
	artifact, err := c.artifacts.Resolve(name)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
		Network:  net.Name,
		Address:  address.String(),
		Contract: artifact.FullyQualifiedName(),
		// unless the comparison below says otherwise
		MatchType: string(artifacts.MatchNone),
	}

	reader, err := c.dial(ctx, net.RPCURL)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to connect to %s: %v", net.Name, err)
		return result, nil
	}
	defer reader.Close()

	code, err := reader.CodeAt(ctx, address.Common(), nil)
	if err != nil {
		result.Message = fmt.Sprintf("Failed to fetch on-chain bytecode: %v", err)
		return result, nil
	}

	match := artifacts.CompareBytecode(code, artifact.DeployedBytecode)
	result.Match = match.Match
	result.MatchType = string(match.MatchType)
	result.Message = match.Message
	return result, nil
}
