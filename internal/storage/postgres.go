package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger, now: time.Now}, nil
}

// Ping checks the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY,
		network TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		contract_name TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL,
		deployer_address TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL DEFAULT 0,
		constructor_args TEXT NOT NULL DEFAULT '',
		deployment_data JSONB NOT NULL DEFAULT '{}',
		outcome TEXT NOT NULL,
		verification_status TEXT NOT NULL DEFAULT '',
		verification_reason TEXT NOT NULL DEFAULT '',
		verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	createdAt := s.now().UTC()
	if d.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, d.CreatedAt)
		if err != nil {
			return fmt.Errorf("parsing created_at: %w", err)
		}
		createdAt = t
	}
	d.CreatedAt = createdAt.Format(time.RFC3339Nano)

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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::timestamptz, $16)
	`
	_, err = s.db.ExecContext(ctx, query, d.ID, d.Network, d.ChainID, d.ContractName, d.SourcePath,
		strings.ToLower(d.Address), strings.ToLower(d.DeployerAddress), d.TxHash, d.BlockNumber, d.ConstructorArgs,
		data, d.Outcome, d.VerificationStatus, d.VerificationReason, verifiedAt, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s on chain %s", ErrAlreadyExists, d.Address, d.ChainID)
		}
		return fmt.Errorf("inserting deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves a deployment by ID
func (s *PostgresStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pgColumns()+" FROM deployments WHERE id::text = $1", id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDeploymentByAddress retrieves a deployment by chain ID and address
func (s *PostgresStore) GetDeploymentByAddress(ctx context.Context, chainID, address string) (*Deployment, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pgColumns()+" FROM deployments WHERE chain_id = $1 AND address = $2",
		chainID, strings.ToLower(address))
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments newest first with cursor pagination
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	if pagination.Limit <= 0 {
		pagination.Limit = 20
	}
	query, args := listQuery(filter, pagination, func(n int) string { return "$" + strconv.Itoa(n) })
	query = strings.Replace(query, deploymentColumns, pgColumns(), 1)
	query = strings.Replace(query, "WHERE id = $", "WHERE id::text = $", 1)

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
func (s *PostgresStore) UpdateVerification(ctx context.Context, id string, update VerificationUpdate) error {
	var verifiedAt any
	if update.Verified {
		verifiedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE deployments
		SET verification_status = $1, verification_reason = $2, outcome = COALESCE(NULLIF($3::text, ''), outcome),
			verified_at = COALESCE($4::timestamptz, verified_at)
		WHERE id::text = $5
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

// pgColumns casts UUID and JSONB columns to text so scanDeployment works on both drivers
func pgColumns() string {
	cols := strings.Replace(deploymentColumns, "id, network", "id::text, network", 1)
	return strings.Replace(cols, "deployment_data,", "deployment_data::text,", 1)
}
