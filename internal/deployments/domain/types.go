// Package domain contains the business logic for deploying contracts and
// keeping their history.
package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraship/internal/artifacts"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
)

// DeploymentRequest is one contract creation to perform
type DeploymentRequest struct {
	Artifact        *artifacts.ContractArtifact
	ConstructorArgs []string
	// Libraries maps "source:Name" to an already deployed library address
	Libraries map[string]common.Address
	Network   networks.NetworkConfig
	// OnSubmitted, when set, is called once the transaction is broadcast
	OnSubmitted func(txHash common.Hash, predicted common.Address)
}

// DeploymentRecord describes a confirmed contract creation
type DeploymentRecord struct {
	ContractAddress    validation.Address
	TransactionHash    common.Hash
	Network            string
	ChainID            uint64
	Deployer           common.Address
	BlockNumber        uint64
	BlockConfirmations uint64
	GasUsed            uint64
	// ConstructorArgs is the ABI encoding appended to the creation code
	ConstructorArgs []byte
}

// Plan is what Deploy would submit, computed without sending anything
type Plan struct {
	Network          string
	ChainID          uint64
	Deployer         common.Address
	Nonce            uint64
	PredictedAddress common.Address
	GasEstimate      uint64
	GasLimit         uint64
	CreationCodeSize int
	ConstructorArgs  []byte
}

// Deployment represents a recorded deployment.
type Deployment struct {
	ID                 string         `json:"id"`
	Network            string         `json:"network"`
	ChainID            string         `json:"chainId"`
	ContractName       string         `json:"contractName"`
	SourcePath         string         `json:"sourcePath,omitempty"`
	Address            string         `json:"address"`
	DeployerAddress    string         `json:"deployerAddress,omitempty"`
	TxHash             string         `json:"txHash"`
	BlockNumber        int64          `json:"blockNumber"`
	ConstructorArgs    string         `json:"constructorArgs,omitempty"`
	DeploymentData     map[string]any `json:"deploymentData,omitempty"`
	Outcome            string         `json:"outcome"`
	VerificationStatus string         `json:"verificationStatus,omitempty"`
	VerificationReason string         `json:"verificationReason,omitempty"`
	Verified           bool           `json:"verified"`
	VerifiedAt         *time.Time     `json:"verifiedAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// RecordRequest is the request to record a new deployment.
type RecordRequest struct {
	Network        string
	ContractName   string
	SourcePath     string
	Record         *DeploymentRecord
	Outcome        string
	DeploymentData map[string]any
}

// VerificationResult is the verification outcome stored against a deployment
type VerificationResult struct {
	Status   string
	Reason   string
	Outcome  string
	Verified bool
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Network  string
	ChainID  string
	Contract string
	Verified *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
}
