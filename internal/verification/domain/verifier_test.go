package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
)

// scriptedExplorer replays outcomes in order and repeats the last one
type scriptedExplorer struct {
	outcomes []Outcome
	errs     []error
	submits  int
	checks   int
	guids    []string
	lastSub  Submission
}

func (s *scriptedExplorer) next() (Outcome, error) {
	i := s.submits + s.checks - 1
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	return s.outcomes[i], err
}

func (s *scriptedExplorer) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	s.submits++
	s.lastSub = sub
	return s.next()
}

func (s *scriptedExplorer) CheckStatus(ctx context.Context, guid string) (Outcome, error) {
	s.checks++
	s.guids = append(s.guids, guid)
	return s.next()
}

func (s *scriptedExplorer) calls() int { return s.submits + s.checks }

func testTarget() Target {
	return Target{
		Network: networks.NetworkConfig{
			Name:                 "testnetA",
			VerificationEndpoint: "https://api.etherscan.example/api",
			VerificationAPIKey:   "KEY",
		},
		Address:         validation.AddressFrom(common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")),
		ChainID:         31337,
		ConstructorArgs: []byte{0xca, 0xfe},
	}
}

func testSource() Source {
	return Source{
		ContractName:    "src/Registry.sol:Registry",
		CompilerVersion: "0.8.24+commit.e11b9ed9",
		StandardJSON:    []byte(`{"language":"Solidity"}`),
	}
}

func newTestVerifier(explorer Explorer, delays *[]time.Duration) *Verifier {
	v := NewVerifier(func(networks.NetworkConfig) (Explorer, error) { return explorer, nil },
		Options{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 2 * time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	v.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
	return v
}

func TestVerifyTerminalOnFirstCall(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
	}{
		{"verified", Outcome{Status: StatusVerified}},
		{"already verified", Outcome{Status: StatusAlreadyVerified}},
		{"failed", Failed("Fail - Unable to verify. Compiled contract deployment bytecode does NOT match")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			explorer := &scriptedExplorer{outcomes: []Outcome{tt.outcome}}
			var delays []time.Duration

			out, err := newTestVerifier(explorer, &delays).Verify(context.Background(), testTarget(), testSource())
			require.NoError(t, err)
			assert.Equal(t, tt.outcome.Status, out.Status)
			assert.Equal(t, 1, out.Attempts)
			assert.Equal(t, 1, explorer.calls())
			assert.Empty(t, delays)
		})
	}
}

func TestVerifyPendingIsBounded(t *testing.T) {
	explorer := &scriptedExplorer{outcomes: []Outcome{Pending("Unable to locate ContractCode", 0)}}
	var delays []time.Duration

	out, err := newTestVerifier(explorer, &delays).Verify(context.Background(), testTarget(), testSource())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, 5, out.Attempts)
	assert.Equal(t, 5, explorer.calls())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}, delays)
}

func TestVerifyPollsGUIDAfterSubmission(t *testing.T) {
	explorer := &scriptedExplorer{outcomes: []Outcome{
		{Status: StatusPending, GUID: "guid-1", Reason: "queued"},
		Pending("Pending in queue", 0),
		{Status: StatusVerified},
	}}
	var delays []time.Duration

	out, err := newTestVerifier(explorer, &delays).Verify(context.Background(), testTarget(), testSource())
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "guid-1", out.GUID)
	assert.Equal(t, 1, explorer.submits)
	assert.Equal(t, []string{"guid-1", "guid-1"}, explorer.guids)

	sub := explorer.lastSub
	assert.Equal(t, "v0.8.24+commit.e11b9ed9", sub.CompilerVersion)
	assert.Equal(t, "src/Registry.sol:Registry", sub.ContractName)
	assert.Equal(t, []byte{0xca, 0xfe}, sub.ConstructorArgs)
	assert.Equal(t, uint64(31337), sub.ChainID)
}

func TestVerifyTransportErrorsAreTransient(t *testing.T) {
	explorer := &scriptedExplorer{
		outcomes: []Outcome{{}, {Status: StatusAlreadyVerified}},
		errs:     []error{errors.New("connection reset by peer")},
	}
	var delays []time.Duration

	out, err := newTestVerifier(explorer, &delays).Verify(context.Background(), testTarget(), testSource())
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyVerified, out.Status)
	assert.Equal(t, 2, explorer.calls())
	assert.Len(t, delays, 1)
}

func TestVerifyHonorsRetryAfterWithinMaxDelay(t *testing.T) {
	explorer := &scriptedExplorer{outcomes: []Outcome{
		Pending("rate limited", 30*time.Second),
		Pending("rate limited", 10*time.Minute),
		{Status: StatusVerified},
	}}
	var delays []time.Duration

	_, err := newTestVerifier(explorer, &delays).Verify(context.Background(), testTarget(), testSource())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second, 2 * time.Minute}, delays)
}

func TestVerifyCancelledDuringBackoff(t *testing.T) {
	explorer := &scriptedExplorer{outcomes: []Outcome{Pending("Unable to locate ContractCode", 0)}}
	var delays []time.Duration
	v := newTestVerifier(explorer, &delays)

	ctx, cancel := context.WithCancel(context.Background())
	v.sleep = func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}

	out, err := v.Verify(ctx, testTarget(), testSource())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, explorer.calls())
}

func TestVerifyNotConfigured(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Target)
	}{
		{"no API key", func(t *Target) { t.Network.VerificationAPIKey = "" }},
		{"no endpoint", func(t *Target) { t.Network.VerificationEndpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			explorer := &scriptedExplorer{outcomes: []Outcome{{Status: StatusVerified}}}
			var delays []time.Duration
			target := testTarget()
			tt.mutate(&target)

			out, err := newTestVerifier(explorer, &delays).Verify(context.Background(), target, testSource())
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, out.Status)
			assert.Contains(t, out.Reason, "not configured")
			assert.Zero(t, explorer.calls())
		})
	}
}

func TestVerifyExplorerFactoryError(t *testing.T) {
	v := NewVerifier(func(networks.NetworkConfig) (Explorer, error) { return nil, errors.New("unsupported explorer") },
		Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	out, err := v.Verify(context.Background(), testTarget(), testSource())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "unsupported explorer")
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusVerified.Terminal())
	assert.True(t, StatusAlreadyVerified.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())

	assert.True(t, Outcome{Status: StatusAlreadyVerified}.Succeeded())
	assert.False(t, Failed("x").Succeeded())
}
