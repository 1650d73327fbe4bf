package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// deploymentColumns is the column list every deployment query selects
const deploymentColumns = `id, network, chain_id, contract_name, source_path, address, deployer_address, tx_hash,
	block_number, constructor_args, deployment_data, outcome, verification_status, verification_reason,
	verified_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeployment reads one row selected with deploymentColumns
func scanDeployment(row rowScanner) (*Deployment, error) {
	var (
		d          Deployment
		data       string
		verifiedAt sql.NullString
		createdAt  sql.NullString
	)
	err := row.Scan(&d.ID, &d.Network, &d.ChainID, &d.ContractName, &d.SourcePath, &d.Address, &d.DeployerAddress,
		&d.TxHash, &d.BlockNumber, &d.ConstructorArgs, &data, &d.Outcome, &d.VerificationStatus, &d.VerificationReason,
		&verifiedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &d.DeploymentData); err != nil {
			return nil, fmt.Errorf("decoding deployment data: %w", err)
		}
	}
	d.VerifiedAt = verifiedAt.String
	d.CreatedAt = createdAt.String
	return &d, nil
}

// encodeData serializes deployment data, defaulting to an empty object
func encodeData(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding deployment data: %w", err)
	}
	return string(b), nil
}

// listQuery builds the filtered, cursor-paginated list query. Cursors are
// deployment IDs ordered by (created_at, id) descending; placeholder renders
// the n-th bind parameter for the driver.
func listQuery(filter DeploymentFilter, pagination PaginationParams, placeholder func(n int) string) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(clause, "?", placeholder(len(args))))
	}

	if filter.Network != "" {
		add("network = ?", filter.Network)
	}
	if filter.ChainID != "" {
		add("chain_id = ?", filter.ChainID)
	}
	if filter.Contract != "" {
		add("contract_name = ?", filter.Contract)
	}
	if filter.Verified != nil {
		if *filter.Verified {
			where = append(where, "verified_at IS NOT NULL")
		} else {
			where = append(where, "verified_at IS NULL")
		}
	}
	if pagination.Cursor != "" {
		args = append(args, pagination.Cursor)
		p := placeholder(len(args))
		where = append(where, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM deployments WHERE id = %s)", p))
	}

	query := "SELECT " + deploymentColumns + " FROM deployments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, pagination.Limit+1)
	query += " ORDER BY created_at DESC, id DESC LIMIT " + placeholder(len(args))
	return query, args
}

// paginate trims the look-ahead row and sets the next cursor
func paginate(deployments []Deployment, limit int) *PaginatedResult[Deployment] {
	hasMore := len(deployments) > limit
	if hasMore {
		deployments = deployments[:limit]
	}
	var next string
	if hasMore && len(deployments) > 0 {
		next = deployments[len(deployments)-1].ID
	}
	return &PaginatedResult[Deployment]{Data: deployments, HasMore: hasMore, NextCursor: next}
}
