// Package orchestrator drives one contract through resolution, deployment,
// confirmation and source verification, and reports how far it got.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraship/internal/artifacts"
	deployments "github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
	verification "github.com/pendergraft/contraship/internal/verification/domain"
)

// State is a step of a run
type State string

// Run states. Done and Errored are final.
const (
	StateResolving  State = "resolving"
	StateDeploying  State = "deploying"
	StateConfirming State = "confirming"
	StateVerifying  State = "verifying"
	StateDone       State = "done"
	StateErrored    State = "errored"
)

// Outcome classifies a finished run
type Outcome string

const (
	// OutcomeDone means deployed and verified, already verified, or
	// verification skipped on request.
	OutcomeDone Outcome = "done"
	// OutcomeDeployedButUnverified means the contract is live but its source
	// is not published. The deployment stays valid.
	OutcomeDeployedButUnverified Outcome = "deployed_but_unverified"
	// OutcomeErrored means no confirmed contract resulted from the run
	OutcomeErrored Outcome = "errored"
)

// ErrorKind names the class of failure of an errored run
type ErrorKind string

const (
	KindConfiguration       ErrorKind = "configuration"
	KindArtifactNotFound    ErrorKind = "artifact_not_found"
	KindEncoding            ErrorKind = "encoding"
	KindSubmission          ErrorKind = "submission"
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"
)

// Invocation is one request to deploy a contract
type Invocation struct {
	Network  string
	Contract string
	Args     []string
	// Libraries maps "source:Name" to deployed library addresses
	Libraries  map[string]common.Address
	SkipVerify bool
	// DryRun resolves, encodes and estimates without submitting
	DryRun bool
}

// VerifyInvocation is a request to verify an already deployed contract
type VerifyInvocation struct {
	Network  string
	Contract string
	Address  string
	Args     []string
}

// Transition is a state change of one run
type Transition struct {
	From     State
	To       State
	Network  string
	Contract string
	At       time.Time
}

// NetworkResolver looks up network configuration by name
type NetworkResolver interface {
	Resolve(name string) (networks.NetworkConfig, error)
}

// ArtifactResolver finds compiled contracts and their source metadata
type ArtifactResolver interface {
	Resolve(name validation.ContractName) (*artifacts.ContractArtifact, error)
	VerificationInput(artifact *artifacts.ContractArtifact) (*artifacts.VerificationInput, error)
}

// Deployer submits contract creations and waits for them
type Deployer interface {
	Deploy(ctx context.Context, req deployments.DeploymentRequest) (*deployments.DeploymentRecord, error)
	Plan(ctx context.Context, req deployments.DeploymentRequest) (*deployments.Plan, error)
}

// Verifier publishes contract sources
type Verifier interface {
	Verify(ctx context.Context, target verification.Target, source verification.Source) (verification.Outcome, error)
}

// History persists runs. Failures are logged and never change a run's outcome.
type History interface {
	Record(ctx context.Context, req deployments.RecordRequest) (*deployments.Deployment, error)
	Get(ctx context.Context, chainID, address string) (*deployments.Deployment, error)
	UpdateVerification(ctx context.Context, id string, result deployments.VerificationResult) error
}

// Orchestrator runs invocations. It holds no per-run state, so independent
// invocations may run concurrently.
type Orchestrator struct {
	networks     NetworkResolver
	artifacts    ArtifactResolver
	deployer     Deployer
	verifier     Verifier
	history      History
	onTransition func(Transition)
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithHistory records runs in h
func WithHistory(h History) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithTransitionHook calls fn on every state change
func WithTransitionHook(fn func(Transition)) Option {
	return func(o *Orchestrator) {
		o.onTransition = fn
	}
}

// New creates an orchestrator
func New(nets NetworkResolver, arts ArtifactResolver, deployer Deployer, verifier Verifier, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		networks:  nets,
		artifacts: arts,
		deployer:  deployer,
		verifier:  verifier,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
