package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeFormat is fixed width so text ordering matches time ordering
const sqliteTimeFormat = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode so a running server can read while a CLI run writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: time.Now}, nil
}

// Ping checks the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		contract_name TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		deployer_address TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL,
		block_number INTEGER NOT NULL DEFAULT 0,
		constructor_args TEXT NOT NULL DEFAULT '',
		deployment_data TEXT NOT NULL DEFAULT '{}',
		outcome TEXT NOT NULL,
		verification_status TEXT NOT NULL DEFAULT '',
		verification_reason TEXT NOT NULL DEFAULT '',
		verified_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(chain_id, address)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_network ON deployments(network);
	CREATE INDEX IF NOT EXISTS idx_deployments_contract ON deployments(contract_name);
	CREATE INDEX IF NOT EXISTS idx_deployments_created ON deployments(created_at, id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// RecordDeployment inserts a deployment, assigning ID and CreatedAt when empty
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.CreatedAt == "" {
		d.CreatedAt = s.now().UTC().Format(sqliteTimeFormat)
	}
	data, err := encodeData(d.DeploymentData)
	if err != nil {
		return err
	}

	var verifiedAt any
	if d.VerifiedAt != "" {
		verifiedAt = d.VerifiedAt
	}

	query := `
		INSERT INTO deployments (id, network, chain_id, contract_name, source_path, address, deployer_address, tx_hash,
			block_number, constructor_args, deployment_data, outcome, verification_status, verification_reason,
			verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query, d.ID, d.Network, d.ChainID, d.ContractName, d.SourcePath,
		strings.ToLower(d.Address), strings.ToLower(d.DeployerAddress), d.TxHash, d.BlockNumber, d.ConstructorArgs,
		data, d.Outcome, d.VerificationStatus, d.VerificationReason, verifiedAt, d.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s on chain %s", ErrAlreadyExists, d.Address, d.ChainID)
		}
		return fmt.Errorf("inserting deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deploymentColumns+" FROM deployments WHERE id = ?", id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDeploymentByAddress retrieves a deployment by chain ID and address
func (s *SQLiteStore) GetDeploymentByAddress(ctx context.Context, chainID, address string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+deploymentColumns+" FROM deployments WHERE chain_id = ? AND address = ?",
		chainID, strings.ToLower(address))
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments newest first with cursor pagination
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	if pagination.Limit <= 0 {
		pagination.Limit = 20
	}
	query, args := listQuery(filter, pagination, func(int) string { return "?" })

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(deployments, pagination.Limit), nil
}

// UpdateVerification records a verification result against a deployment
func (s *SQLiteStore) UpdateVerification(ctx context.Context, id string, update VerificationUpdate) error {
	var verifiedAt any
	if update.Verified {
		verifiedAt = s.now().UTC().Format(sqliteTimeFormat)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE deployments
		SET verification_status = ?, verification_reason = ?, outcome = COALESCE(NULLIF(?, ''), outcome),
			verified_at = COALESCE(?, verified_at)
		WHERE id = ?
	`, update.Status, update.Reason, update.Outcome, verifiedAt, id)
	if err != nil {
		return fmt.Errorf("updating verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
