// Package transport provides HTTP request/response types for the deployments domain.
package transport

import (
	"time"

	"github.com/pendergraft/contraship/internal/deployments/domain"
)

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentItem `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DeploymentItem is a deployment in a list.
type DeploymentItem struct {
	ID           string `json:"id"`
	Network      string `json:"network"`
	ChainID      string `json:"chainId"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	Outcome      string `json:"outcome"`
	Verified     bool   `json:"verified"`
	TxHash       string `json:"txHash,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// DeploymentResponse is the response for getting a deployment.
type DeploymentResponse struct {
	ID                 string         `json:"id"`
	Network            string         `json:"network"`
	ChainID            string         `json:"chainId"`
	Address            string         `json:"address"`
	ContractName       string         `json:"contractName"`
	SourcePath         string         `json:"sourcePath,omitempty"`
	DeployerAddress    string         `json:"deployerAddress"`
	TxHash             string         `json:"txHash"`
	BlockNumber        int64          `json:"blockNumber"`
	ConstructorArgs    string         `json:"constructorArgs,omitempty"`
	DeploymentData     map[string]any `json:"deploymentData,omitempty"`
	Outcome            string         `json:"outcome"`
	VerificationStatus string         `json:"verificationStatus,omitempty"`
	VerificationReason string         `json:"verificationReason,omitempty"`
	Verified           bool           `json:"verified"`
	VerifiedAt         string         `json:"verifiedAt,omitempty"`
	CreatedAt          string         `json:"createdAt"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ToItem converts a domain deployment to a list item.
func ToItem(d domain.Deployment) DeploymentItem {
	return DeploymentItem{
		ID:           d.ID,
		Network:      d.Network,
		ChainID:      d.ChainID,
		Address:      d.Address,
		ContractName: d.ContractName,
		Outcome:      d.Outcome,
		Verified:     d.Verified,
		TxHash:       d.TxHash,
		CreatedAt:    formatTime(d.CreatedAt),
	}
}

// ToResponse converts a domain deployment to its full response.
func ToResponse(d *domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:                 d.ID,
		Network:            d.Network,
		ChainID:            d.ChainID,
		Address:            d.Address,
		ContractName:       d.ContractName,
		SourcePath:         d.SourcePath,
		DeployerAddress:    d.DeployerAddress,
		TxHash:             d.TxHash,
		BlockNumber:        d.BlockNumber,
		ConstructorArgs:    d.ConstructorArgs,
		DeploymentData:     d.DeploymentData,
		Outcome:            d.Outcome,
		VerificationStatus: d.VerificationStatus,
		VerificationReason: d.VerificationReason,
		Verified:           d.Verified,
		CreatedAt:          formatTime(d.CreatedAt),
	}
	if d.VerifiedAt != nil {
		resp.VerifiedAt = formatTime(*d.VerifiedAt)
	}
	return resp
}
