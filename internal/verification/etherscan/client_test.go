package etherscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
	"github.com/pendergraft/contraship/internal/verification/domain"
)

func testSubmission() domain.Submission {
	return domain.Submission{
		Address:         validation.AddressFrom(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")),
		ChainID:         80001,
		ContractName:    "contracts/Registry.sol:Registry",
		CompilerVersion: "v0.8.24+commit.e11b9ed9",
		StandardJSON:    json.RawMessage(`{"language":"Solidity"}`),
		ConstructorArgs: []byte{0x00, 0xca, 0xfe},
	}
}

func newTestClient(url string) *Client {
	return New(url+"/api", "KEY", 80001, WithLimiter(rate.NewLimiter(rate.Inf, 1)))
}

func respond(w http.ResponseWriter, status, message, result string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{Status: status, Message: message, Result: result})
}

func TestClient_Submit(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r
		respond(w, "1", "OK", "ezq878u486pzijkvvmerl6a9mzwhv6sefgvqi5tkwceejc7tvn")
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Submit(context.Background(), testSubmission())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, out.Status)
	assert.Equal(t, "ezq878u486pzijkvvmerl6a9mzwhv6sefgvqi5tkwceejc7tvn", out.GUID)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api", got.URL.Path)
	assert.Equal(t, "80001", got.URL.Query().Get("chainid"))
	assert.Equal(t, "KEY", got.PostForm.Get("apikey"))
	assert.Equal(t, "contract", got.PostForm.Get("module"))
	assert.Equal(t, "verifysourcecode", got.PostForm.Get("action"))
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", got.PostForm.Get("contractaddress"))
	assert.Equal(t, `{"language":"Solidity"}`, got.PostForm.Get("sourceCode"))
	assert.Equal(t, "solidity-standard-json-input", got.PostForm.Get("codeformat"))
	assert.Equal(t, "contracts/Registry.sol:Registry", got.PostForm.Get("contractname"))
	assert.Equal(t, "v0.8.24+commit.e11b9ed9", got.PostForm.Get("compilerversion"))
	assert.Equal(t, "00cafe", got.PostForm.Get("constructorArguements"))
}

func TestClient_SubmitClassification(t *testing.T) {
	tests := []struct {
		name   string
		status string
		result string
		want   domain.Status
	}{
		{"already verified", "0", "Contract source code already verified", domain.StatusAlreadyVerified},
		{"not indexed yet", "0", "Unable to locate ContractCode at 0x5fbdb2315678afecb367f032d93f642f64180aa3", domain.StatusPending},
		{"rate limited", "0", "Max rate limit reached", domain.StatusPending},
		{"bad key", "0", "Invalid API Key", domain.StatusFailed},
		{"bad args", "0", "Invalid constructor arguments provided. Please verify that they are in ABI-encoded format", domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respond(w, tt.status, "NOTOK", tt.result)
			}))
			defer server.Close()

			out, err := newTestClient(server.URL).Submit(context.Background(), testSubmission())
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, tt.result, out.Reason)
			assert.Empty(t, out.GUID)
		})
	}
}

func TestClient_CheckStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		result string
		want   domain.Status
	}{
		{"pending", "0", "Pending in queue", domain.StatusPending},
		{"verified", "1", "Pass - Verified", domain.StatusVerified},
		{"already verified", "1", "Already Verified", domain.StatusAlreadyVerified},
		{"mismatch", "0", "Fail - Unable to verify. Compiled contract deployment bytecode does NOT match the transaction deployment bytecode.", domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var query map[string][]string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				query = r.URL.Query()
				respond(w, tt.status, "OK", tt.result)
			}))
			defer server.Close()

			out, err := newTestClient(server.URL).CheckStatus(context.Background(), "guid-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, []string{"checkverifystatus"}, query["action"])
			assert.Equal(t, []string{"guid-1"}, query["guid"])
			assert.Equal(t, []string{"KEY"}, query["apikey"])
			assert.Equal(t, []string{"80001"}, query["chainid"])
		})
	}
}

func TestClient_HTTPErrors(t *testing.T) {
	t.Run("429 with Retry-After is pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		out, err := newTestClient(server.URL).CheckStatus(context.Background(), "guid-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, out.Status)
		assert.Equal(t, 7*time.Second, out.RetryAfter)
	})

	t.Run("5xx is pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		out, err := newTestClient(server.URL).Submit(context.Background(), testSubmission())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, out.Status)
		assert.Contains(t, out.Reason, "502")
	})

	t.Run("4xx is failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer server.Close()

		out, err := newTestClient(server.URL).Submit(context.Background(), testSubmission())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, out.Status)
		assert.Contains(t, out.Reason, "forbidden")
	})

	t.Run("garbage body is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>cloudflare</html>"))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Submit(context.Background(), testSubmission())
		assert.Error(t, err)
	})

	t.Run("unreachable is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := newTestClient(url).Submit(context.Background(), testSubmission())
		assert.Error(t, err)
	})
}

func TestClient_EndpointWithQuery(t *testing.T) {
	c := New("https://api.etherscan.io/v2/api?foo=bar", "KEY", 1)
	assert.Equal(t, "https://api.etherscan.io/v2/api?foo=bar&chainid=1", c.url(0, nil))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}

func TestFactory(t *testing.T) {
	explorer, err := Factory(10 * time.Second)(networks.NetworkConfig{
		Name:                 "testnetA",
		ChainID:              11155111,
		VerificationEndpoint: "https://api.etherscan.io/v2/api",
		VerificationAPIKey:   "KEY",
	})
	require.NoError(t, err)

	c, ok := explorer.(*Client)
	require.True(t, ok)
	assert.Equal(t, uint64(11155111), c.chainID)
	assert.Equal(t, 10*time.Second, c.httpClient.Timeout)
}
