// Package client is a Go client for the contraship history server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a contraship server
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a client for the server at baseURL. apiKey is only needed for
// Check when the server has keys configured.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deployment is a recorded deployment as listed by the server
type Deployment struct {
	ID                 string         `json:"id"`
	Network            string         `json:"network"`
	ChainID            string         `json:"chainId"`
	Address            string         `json:"address"`
	ContractName       string         `json:"contractName"`
	SourcePath         string         `json:"sourcePath,omitempty"`
	DeployerAddress    string         `json:"deployerAddress,omitempty"`
	TxHash             string         `json:"txHash,omitempty"`
	BlockNumber        int64          `json:"blockNumber,omitempty"`
	ConstructorArgs    string         `json:"constructorArgs,omitempty"`
	DeploymentData     map[string]any `json:"deploymentData,omitempty"`
	Outcome            string         `json:"outcome"`
	VerificationStatus string         `json:"verificationStatus,omitempty"`
	VerificationReason string         `json:"verificationReason,omitempty"`
	Verified           bool           `json:"verified"`
	VerifiedAt         string         `json:"verifiedAt,omitempty"`
	CreatedAt          string         `json:"createdAt"`
}

// ListOptions filters ListDeployments. Zero values are not sent.
type ListOptions struct {
	Network  string
	ChainID  string
	Contract string
	Verified *bool
	Limit    int
	Cursor   string
}

// ListDeploymentsResponse is one page of deployments
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CheckRequest asks the server to compare on-chain code with an artifact
type CheckRequest struct {
	Network  string `json:"network"`
	Contract string `json:"contract"`
	Address  string `json:"address"`
}

// CheckResult is the comparison outcome
type CheckResult struct {
	Match     bool   `json:"match"`
	MatchType string `json:"matchType"`
	Message   string `json:"message"`
	Network   string `json:"network"`
	Contract  string `json:"contract"`
	Address   string `json:"address"`
}

// APIError is an error response from the server
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// ListDeployments lists recorded deployments, newest first
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	if opts.Network != "" {
		q.Set("network", opts.Network)
	}
	if opts.ChainID != "" {
		q.Set("chain_id", opts.ChainID)
	}
	if opts.Contract != "" {
		q.Set("contract", opts.Contract)
	}
	if opts.Verified != nil {
		q.Set("verified", strconv.FormatBool(*opts.Verified))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	path := "/api/v1/deployments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeployment gets a deployment by chain ID and address
func (c *Client) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%s/%s", url.PathEscape(chainID), url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeploymentByID gets a deployment by its history ID
func (c *Client) GetDeploymentByID(ctx context.Context, id string) (*Deployment, error) {
	var resp Deployment
	if err := c.get(ctx, "/api/v1/deployments/id/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Check compares a deployed contract with the server's local artifact
func (c *Client) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	var resp CheckResult
	if err := c.post(ctx, "/api/v1/check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
