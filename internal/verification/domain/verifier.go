package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
)

// ErrNotConfigured is the reason given when a network has no verification service
var ErrNotConfigured = errors.New("verification not configured")

// Explorer is one block explorer verification API. Returned errors are
// treated as transient; explorers report rejections as a Failed outcome.
type Explorer interface {
	Submit(ctx context.Context, sub Submission) (Outcome, error)
	CheckStatus(ctx context.Context, guid string) (Outcome, error)
}

// ExplorerFactory builds the explorer client for a network
type ExplorerFactory func(net networks.NetworkConfig) (Explorer, error)

// Options bounds the retry loop
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Verifier publishes deployed contracts' sources with bounded retries
type Verifier struct {
	explorers ExplorerFactory
	opts      Options
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewVerifier creates a new verifier
func NewVerifier(explorers ExplorerFactory, opts Options, logger *slog.Logger) *Verifier {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 5 * time.Second
	}
	return &Verifier{explorers: explorers, opts: opts, logger: logger, sleep: sleepContext}
}

// Target identifies the deployed contract being verified
type Target struct {
	Network         networks.NetworkConfig
	Address         validation.Address
	ChainID         uint64
	ConstructorArgs []byte
}

// Verify submits source for the contract at target and retries while the
// service reports Pending. It makes at most MaxAttempts calls. On
// cancellation it returns the last outcome together with ctx.Err().
func (v *Verifier) Verify(ctx context.Context, target Target, source Source) (Outcome, error) {
	if target.Network.VerificationEndpoint == "" || target.Network.VerificationAPIKey == "" {
		return Failed(fmt.Sprintf("%v for network %q", ErrNotConfigured, target.Network.Name)), nil
	}
	explorer, err := v.explorers(target.Network)
	if err != nil {
		return Failed(fmt.Sprintf("%v for network %q: %v", ErrNotConfigured, target.Network.Name, err)), nil
	}

	sub := Submission{
		Address:         target.Address,
		ChainID:         target.ChainID,
		ContractName:    source.ContractName,
		CompilerVersion: validation.CompilerVersionTag(source.CompilerVersion),
		StandardJSON:    source.StandardJSON,
		ConstructorArgs: target.ConstructorArgs,
		License:         source.License,
	}

	var (
		last  Outcome
		guid  string
		delay = v.opts.BaseDelay
	)
	for attempt := 1; attempt <= v.opts.MaxAttempts; attempt++ {
		var out Outcome
		if guid == "" {
			out, err = explorer.Submit(ctx, sub)
		} else {
			out, err = explorer.CheckStatus(ctx, guid)
		}
		if err != nil {
			if ctx.Err() != nil {
				last.Attempts = attempt
				return last, ctx.Err()
			}
			out = Pending(err.Error(), 0)
		}
		if out.GUID != "" {
			guid = out.GUID
		}
		out.GUID = guid
		out.Attempts = attempt
		last = out

		v.logger.Debug("verification attempt",
			"network", target.Network.Name,
			"address", target.Address.String(),
			"attempt", attempt,
			"status", out.Status,
			"reason", out.Reason,
		)

		if out.Status.Terminal() || attempt == v.opts.MaxAttempts {
			break
		}

		wait := delay
		if out.RetryAfter > wait {
			wait = out.RetryAfter
		}
		if v.opts.MaxDelay > 0 && wait > v.opts.MaxDelay {
			wait = v.opts.MaxDelay
		}
		if err := v.sleep(ctx, wait); err != nil {
			return last, err
		}
		delay *= 2
	}

	v.logger.Info("verification finished",
		"network", target.Network.Name,
		"address", target.Address.String(),
		"status", last.Status,
		"attempts", last.Attempts,
	)
	return last, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
