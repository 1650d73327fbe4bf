// Package etherscan is the verification client for Etherscan-compatible
// explorer APIs (Etherscan, Polygonscan, Blockscout's etherscan mode).
package etherscan

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/verification/domain"
)

// DefaultRate is the free tier limit of the Etherscan API
const DefaultRate = 5

const codeFormat = "solidity-standard-json-input"

// Response is the envelope every Etherscan API call returns
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Client talks to one explorer endpoint with one API key
type Client struct {
	endpoint   string
	apiKey     string
	chainID    uint64
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLimiter shares a request limiter between clients
func WithLimiter(l *rate.Limiter) Option {
	return func(client *Client) {
		client.limiter = l
	}
}

// New creates a new explorer client
func New(endpoint, apiKey string, chainID uint64, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		chainID:  chainID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Factory returns an explorer factory whose clients share one limiter and
// request timeout.
func Factory(timeout time.Duration) domain.ExplorerFactory {
	limiter := rate.NewLimiter(rate.Limit(DefaultRate), 1)
	httpClient := &http.Client{Timeout: timeout}
	return func(net networks.NetworkConfig) (domain.Explorer, error) {
		if _, err := url.Parse(net.VerificationEndpoint); err != nil {
			return nil, fmt.Errorf("parsing verification endpoint: %w", err)
		}
		return New(net.VerificationEndpoint, net.VerificationAPIKey, net.ChainID,
			WithHTTPClient(httpClient), WithLimiter(limiter)), nil
	}
}

// Submit posts the standard JSON input for verification. A queued
// submission comes back Pending with its GUID.
func (c *Client) Submit(ctx context.Context, sub domain.Submission) (domain.Outcome, error) {
	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", sub.Address.String())
	form.Set("sourceCode", string(sub.StandardJSON))
	form.Set("codeformat", codeFormat)
	form.Set("contractname", sub.ContractName)
	form.Set("compilerversion", sub.CompilerVersion)
	// the API has always spelled it this way
	form.Set("constructorArguements", hex.EncodeToString(sub.ConstructorArgs))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(sub.ChainID, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, out, err := c.do(req)
	if err != nil || resp == nil {
		return out, err
	}

	if resp.Status == "1" {
		return domain.Outcome{
			Status: domain.StatusPending,
			Reason: "submitted, awaiting verification",
			GUID:   resp.Result,
		}, nil
	}
	return classify(resp), nil
}

// CheckStatus polls a queued submission
func (c *Client) CheckStatus(ctx context.Context, guid string) (domain.Outcome, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.chainID, q), nil)
	if err != nil {
		return domain.Outcome{}, err
	}

	resp, out, err := c.do(req)
	if err != nil || resp == nil {
		return out, err
	}
	return classify(resp), nil
}

func (c *Client) url(chainID uint64, q url.Values) string {
	if chainID == 0 {
		chainID = c.chainID
	}
	if q == nil {
		q = url.Values{}
	}
	if chainID != 0 && q.Get("chainid") == "" {
		q.Set("chainid", strconv.FormatUint(chainID, 10))
	}

	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}
	return c.endpoint + sep + q.Encode()
}

// do sends the request. It returns either a decoded response, or an outcome
// for HTTP-level answers, or an error for transport failures.
func (c *Client) do(req *http.Request) (*Response, domain.Outcome, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, domain.Outcome{}, err
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Outcome{}, fmt.Errorf("calling verification service: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now())
		return nil, domain.Pending(fmt.Sprintf("verification service returned %d", httpResp.StatusCode), retryAfter), nil
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, domain.Outcome{}, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, domain.Failed(fmt.Sprintf("verification service returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))), nil
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.Outcome{}, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, domain.Outcome{}, nil
}

// classify maps a response's result text to an outcome
func classify(resp *Response) domain.Outcome {
	result := resp.Result
	lower := strings.ToLower(result)

	switch {
	case strings.Contains(lower, "already verified"):
		return domain.Outcome{Status: domain.StatusAlreadyVerified, Reason: result}
	case strings.HasPrefix(result, "Pass - Verified"):
		return domain.Outcome{Status: domain.StatusVerified, Reason: result}
	case strings.Contains(lower, "pending in queue"),
		strings.Contains(lower, "unable to locate contractcode"),
		strings.Contains(lower, "in progress"):
		return domain.Pending(result, 0)
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "max calls per sec"):
		return domain.Pending(result, time.Second)
	case resp.Status == "1":
		return domain.Outcome{Status: domain.StatusVerified, Reason: result}
	}

	reason := result
	if reason == "" {
		reason = resp.Message
	}
	return domain.Failed(reason)
}

// parseRetryAfter reads a Retry-After header given either in seconds or as an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
