package domain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pendergraft/contraship/internal/storage"
	"github.com/pendergraft/contraship/internal/validation"
)

// Common errors returned by the history service.
var (
	ErrNotFound       = errors.New("deployment not found")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidChainID = errors.New("invalid chain ID")
)

// Service defines the deployment history interface.
type Service interface {
	// Record stores a confirmed deployment.
	Record(ctx context.Context, req RecordRequest) (*Deployment, error)

	// Get retrieves a deployment by chain and address.
	Get(ctx context.Context, chainID, address string) (*Deployment, error)

	// GetByID retrieves a deployment by its history ID.
	GetByID(ctx context.Context, id string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// UpdateVerification stores the verification result of a deployment.
	UpdateVerification(ctx context.Context, id string, result VerificationResult) error
}

// service implements the Service interface.
type service struct {
	store storage.DeploymentStore
}

// NewService creates a new history service.
func NewService(store storage.DeploymentStore) Service {
	return &service{store: store}
}

// Record stores a confirmed deployment.
func (s *service) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	rec := req.Record
	if rec == nil || rec.ContractAddress.IsZero() {
		return nil, ErrInvalidAddress
	}
	if err := validation.ValidateChainID(rec.ChainID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	data := make(map[string]any, len(req.DeploymentData)+2)
	for k, v := range req.DeploymentData {
		data[k] = v
	}
	data["gasUsed"] = rec.GasUsed
	data["confirmations"] = rec.BlockConfirmations

	d := &storage.Deployment{
		Network:         req.Network,
		ChainID:         strconv.FormatUint(rec.ChainID, 10),
		ContractName:    req.ContractName,
		SourcePath:      req.SourcePath,
		Address:         rec.ContractAddress.String(),
		DeployerAddress: rec.Deployer.Hex(),
		TxHash:          rec.TransactionHash.Hex(),
		BlockNumber:     int64(rec.BlockNumber),
		ConstructorArgs: hex.EncodeToString(rec.ConstructorArgs),
		DeploymentData:  data,
		Outcome:         req.Outcome,
	}

	if err := s.store.RecordDeployment(ctx, d); err != nil {
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	return toDeployment(d), nil
}

// Get retrieves a deployment by chain and address.
func (s *service) Get(ctx context.Context, chainID, address string) (*Deployment, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	id, err := strconv.ParseUint(chainID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChainID, chainID)
	}
	if err := validation.ValidateChainID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainID, err)
	}

	d, err := s.store.GetDeploymentByAddress(ctx, chainID, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(d), nil
}

// GetByID retrieves a deployment by its history ID.
func (s *service) GetByID(ctx context.Context, id string) (*Deployment, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(d), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		Network:  filter.Network,
		ChainID:  filter.ChainID,
		Contract: filter.Contract,
		Verified: filter.Verified,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i := range result.Data {
		deployments[i] = *toDeployment(&result.Data[i])
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
	}, nil
}

// UpdateVerification stores the verification result of a deployment.
func (s *service) UpdateVerification(ctx context.Context, id string, result VerificationResult) error {
	err := s.store.UpdateVerification(ctx, id, storage.VerificationUpdate{
		Status:   result.Status,
		Reason:   result.Reason,
		Outcome:  result.Outcome,
		Verified: result.Verified,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("updating verification: %w", err)
	}
	return nil
}

// timestamp layouts written by the sqlite and postgres stores
var timeLayouts = []string{"2006-01-02T15:04:05.000000Z", time.RFC3339Nano, "2006-01-02 15:04:05"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toDeployment(d *storage.Deployment) *Deployment {
	out := &Deployment{
		ID:                 d.ID,
		Network:            d.Network,
		ChainID:            d.ChainID,
		ContractName:       d.ContractName,
		SourcePath:         d.SourcePath,
		Address:            d.Address,
		DeployerAddress:    d.DeployerAddress,
		TxHash:             d.TxHash,
		BlockNumber:        d.BlockNumber,
		ConstructorArgs:    d.ConstructorArgs,
		DeploymentData:     d.DeploymentData,
		Outcome:            d.Outcome,
		VerificationStatus: d.VerificationStatus,
		VerificationReason: d.VerificationReason,
	}
	if t, ok := parseTime(d.CreatedAt); ok {
		out.CreatedAt = t
	}
	if t, ok := parseTime(d.VerifiedAt); ok {
		out.Verified = true
		out.VerifiedAt = &t
	}
	return out
}
