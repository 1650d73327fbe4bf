// Package storage persists deployment run history.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/contraship/internal/config"
)

// DeploymentStore handles deployment history operations
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	GetDeploymentByAddress(ctx context.Context, chainID, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
	UpdateVerification(ctx context.Context, id string, update VerificationUpdate) error
}

// Store combines the storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment is one confirmed contract creation
type Deployment struct {
	ID                 string
	Network            string
	ChainID            string
	ContractName       string
	SourcePath         string
	Address            string
	DeployerAddress    string
	TxHash             string
	BlockNumber        int64
	ConstructorArgs    string // hex, no 0x
	DeploymentData     map[string]any
	Outcome            string
	VerificationStatus string
	VerificationReason string
	VerifiedAt         string
	CreatedAt          string
}

// VerificationUpdate records the result of a verification run
type VerificationUpdate struct {
	Status  string
	Reason  string
	Outcome string
	// Verified stamps verified_at
	Verified bool
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	Network  string
	ChainID  string
	Contract string
	Verified *bool
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration. Storage type "none"
// returns a nil store; callers treat history as disabled.
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
