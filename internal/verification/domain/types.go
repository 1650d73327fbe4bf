// Package domain contains the business logic for contract verification.
package domain

import (
	"encoding/json"
	"time"

	"github.com/pendergraft/contraship/internal/validation"
)

// Status is the state a verification service reports for a submission
type Status string

// Verification statuses. Verified, AlreadyVerified and Failed are terminal.
const (
	StatusVerified        Status = "verified"
	StatusAlreadyVerified Status = "already_verified"
	StatusPending         Status = "pending"
	StatusFailed          Status = "failed"
)

// Terminal reports whether no further attempt can change the status
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Outcome is the result of verifying one deployment.
type Outcome struct {
	Status Status `json:"status"`
	// RetryAfter is the wait the service asked for, when it asked for one
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Attempts   int           `json:"attempts"`
	// GUID identifies a queued submission on Etherscan-style services
	GUID string `json:"guid,omitempty"`
}

// Succeeded is true for Verified and AlreadyVerified
func (o Outcome) Succeeded() bool {
	return o.Status == StatusVerified || o.Status == StatusAlreadyVerified
}

// Pending creates a non-terminal outcome
func Pending(reason string, retryAfter time.Duration) Outcome {
	return Outcome{Status: StatusPending, Reason: reason, RetryAfter: retryAfter}
}

// Failed creates a terminal failure outcome
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// Submission is everything a verification service needs for one contract.
type Submission struct {
	Address validation.Address
	ChainID uint64
	// ContractName is fully qualified, "src/Registry.sol:Registry"
	ContractName string
	// CompilerVersion is the long solc version with its "v" prefix
	CompilerVersion string
	StandardJSON    json.RawMessage
	ConstructorArgs []byte
	License         string
}

// Source is the compiler input of the deployed contract
type Source struct {
	ContractName    string
	CompilerVersion string
	StandardJSON    json.RawMessage
	License         string
}

// CheckResult is the comparison of on-chain runtime code with an artifact.
type CheckResult struct {
	Network   string `json:"network" yaml:"network"`
	Address   string `json:"address" yaml:"address"`
	Contract  string `json:"contract" yaml:"contract"`
	Match     bool   `json:"match" yaml:"match"`
	MatchType string `json:"matchType" yaml:"matchType"` // "full", "partial", "none"
	Message   string `json:"message" yaml:"message"`
}
