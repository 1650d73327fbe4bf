// Package transport provides HTTP request/response types for the verification domain.
package transport

import "github.com/pendergraft/contraship/internal/verification/domain"

// CheckRequest is the HTTP request body for checking a deployed contract.
type CheckRequest struct {
	Network  string `json:"network"`
	Contract string `json:"contract"`
	Address  string `json:"address"`
}

// ToDomain converts CheckRequest to domain.CheckRequest.
func (r CheckRequest) ToDomain() domain.CheckRequest {
	return domain.CheckRequest{
		Network:  r.Network,
		Contract: r.Contract,
		Address:  r.Address,
	}
}

// CheckResponse is the response for a check request.
type CheckResponse struct {
	Match     bool   `json:"match"`
	MatchType string `json:"matchType"`
	Message   string `json:"message"`
	Network   string `json:"network"`
	Contract  string `json:"contract"`
	Address   string `json:"address"`
}

// ToResponse converts a domain result to its HTTP shape.
func ToResponse(r *domain.CheckResult) CheckResponse {
	return CheckResponse{
		Match:     r.Match,
		MatchType: r.MatchType,
		Message:   r.Message,
		Network:   r.Network,
		Contract:  r.Contract,
		Address:   r.Address,
	}
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
