package orchestrator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraship/internal/artifacts"
	deployments "github.com/pendergraft/contraship/internal/deployments/domain"
	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/observability/metrics"
	"github.com/pendergraft/contraship/internal/validation"
	verification "github.com/pendergraft/contraship/internal/verification/domain"
)

// Run deploys one contract and verifies its source. It always returns a
// report; failures are described by its Outcome and ErrorKind.
func (o *Orchestrator) Run(ctx context.Context, inv Invocation) *Report {
	r := o.begin(inv.Network, inv.Contract)

	net, artifact, kind, err := o.resolve(inv.Network, inv.Contract)
	if err != nil {
		return r.fail(kind, err)
	}
	r.report.Contract = artifact.FullyQualifiedName()
	r.report.ChainID = net.ChainID

	req := deployments.DeploymentRequest{
		Artifact:        artifact,
		ConstructorArgs: inv.Args,
		Libraries:       inv.Libraries,
		Network:         net,
	}

	if inv.DryRun {
		return o.plan(ctx, r, req)
	}

	r.enter(StateDeploying)
	req.OnSubmitted = func(txHash common.Hash, _ common.Address) {
		r.report.TxHash = txHash.Hex()
		r.enter(StateConfirming)
	}

	rec, err := o.deployer.Deploy(ctx, req)
	if err != nil {
		var timeout *deployments.ConfirmationTimeoutError
		if errors.As(err, &timeout) {
			r.report.TxHash = timeout.TxHash.Hex()
			r.report.Address = timeout.Address.Hex()
		}
		return r.fail(classify(err), err)
	}
	if r.state == StateDeploying {
		r.enter(StateConfirming)
	}

	r.report.Address = rec.ContractAddress.String()
	r.report.TxHash = rec.TransactionHash.Hex()
	r.report.ChainID = rec.ChainID
	r.report.Deployer = rec.Deployer.Hex()
	r.report.BlockNumber = rec.BlockNumber
	r.report.Confirmations = rec.BlockConfirmations
	r.report.GasUsed = rec.GasUsed
	r.report.ConstructorArgs = hex.EncodeToString(rec.ConstructorArgs)
	metrics.GasUsed(net.Name, rec.GasUsed)

	historyID := o.record(ctx, r, artifact, rec)

	if inv.SkipVerify || net.VerificationDisabled {
		r.report.VerificationSkipped = true
		o.updateHistory(ctx, historyID, deployments.VerificationResult{
			Status:  "skipped",
			Outcome: string(OutcomeDone),
		})
		return r.succeed(OutcomeDone)
	}

	r.enter(StateVerifying)
	out := o.verify(ctx, net, artifact, rec.ContractAddress, rec.ChainID, rec.ConstructorArgs)
	r.report.Verification = verificationReport(out)

	outcome := OutcomeDeployedButUnverified
	if out.Succeeded() {
		outcome = OutcomeDone
	}
	o.updateHistory(ctx, historyID, deployments.VerificationResult{
		Status:   string(out.Status),
		Reason:   out.Reason,
		Outcome:  string(outcome),
		Verified: out.Succeeded(),
	})
	return r.succeed(outcome)
}

// VerifyDeployed publishes the source of a contract deployed earlier, by this
// tool or any other.
func (o *Orchestrator) VerifyDeployed(ctx context.Context, inv VerifyInvocation) *Report {
	r := o.begin(inv.Network, inv.Contract)

	address, err := validation.ParseAddress(inv.Address)
	if err != nil {
		return r.fail(KindEncoding, fmt.Errorf("%w: address %q: %v", deployments.ErrEncoding, inv.Address, err))
	}
	r.report.Address = address.String()

	net, artifact, kind, err := o.resolve(inv.Network, inv.Contract)
	if err != nil {
		return r.fail(kind, err)
	}
	r.report.Contract = artifact.FullyQualifiedName()
	r.report.ChainID = net.ChainID

	args, err := deployments.EncodeConstructorArgs(artifact.ConstructorInputs(), inv.Args)
	if err != nil {
		return r.fail(KindEncoding, err)
	}
	r.report.ConstructorArgs = hex.EncodeToString(args)

	r.enter(StateVerifying)
	out := o.verify(ctx, net, artifact, address, net.ChainID, args)
	r.report.Verification = verificationReport(out)

	outcome := OutcomeDeployedButUnverified
	if out.Succeeded() {
		outcome = OutcomeDone
	}

	if o.history != nil && net.ChainID != 0 {
		hctx := context.WithoutCancel(ctx)
		d, err := o.history.Get(hctx, strconv.FormatUint(net.ChainID, 10), address.String())
		switch {
		case err == nil:
			r.report.HistoryID = d.ID
			o.updateHistory(ctx, d.ID, deployments.VerificationResult{
				Status:   string(out.Status),
				Reason:   out.Reason,
				Outcome:  string(outcome),
				Verified: out.Succeeded(),
			})
		case !errors.Is(err, deployments.ErrNotFound):
			o.logger.Warn("reading deployment history failed", "network", net.Name, "address", address.String(), "error", err)
		}
	}

	return r.succeed(outcome)
}

func (o *Orchestrator) plan(ctx context.Context, r *run, req deployments.DeploymentRequest) *Report {
	p, err := o.deployer.Plan(ctx, req)
	if err != nil {
		return r.fail(classify(err), err)
	}
	r.report.ChainID = p.ChainID
	r.report.ConstructorArgs = hex.EncodeToString(p.ConstructorArgs)
	r.report.VerificationSkipped = true
	r.report.Plan = &PlanReport{
		Deployer:         p.Deployer.Hex(),
		Nonce:            p.Nonce,
		PredictedAddress: p.PredictedAddress.Hex(),
		GasEstimate:      p.GasEstimate,
		GasLimit:         p.GasLimit,
		CreationCodeSize: p.CreationCodeSize,
	}
	return r.succeed(OutcomeDone)
}

func (o *Orchestrator) resolve(network, contract string) (networks.NetworkConfig, *artifacts.ContractArtifact, ErrorKind, error) {
	net, err := o.networks.Resolve(network)
	if err != nil {
		return net, nil, KindConfiguration, err
	}
	name, err := validation.ParseContractName(contract)
	if err != nil {
		return net, nil, KindArtifactNotFound, fmt.Errorf("%w: %v", artifacts.ErrArtifactNotFound, err)
	}
	artifact, err := o.artifacts.Resolve(name)
	if err != nil {
		return net, nil, KindArtifactNotFound, err
	}
	return net, artifact, "", nil
}

func (o *Orchestrator) verify(ctx context.Context, net networks.NetworkConfig, artifact *artifacts.ContractArtifact, address validation.Address, chainID uint64, args []byte) verification.Outcome {
	var out verification.Outcome

	input, err := o.artifacts.VerificationInput(artifact)
	if err != nil {
		out = verification.Failed(fmt.Sprintf("source metadata unavailable: %v", err))
	} else {
		out, err = o.verifier.Verify(ctx,
			verification.Target{
				Network:         net,
				Address:         address,
				ChainID:         chainID,
				ConstructorArgs: args,
			},
			verification.Source{
				ContractName:    artifact.FullyQualifiedName(),
				CompilerVersion: input.CompilerVersion,
				StandardJSON:    input.StandardJSON,
				License:         artifact.License,
			})
		if err != nil {
			if out.Status == "" {
				out = verification.Pending("", 0)
			}
			out.Reason = fmt.Sprintf("interrupted: %v; last response: %s", err, out.Reason)
		}
	}

	metrics.Verification(net.Name, string(out.Status), out.Attempts)
	return out
}

func (o *Orchestrator) record(ctx context.Context, r *run, artifact *artifacts.ContractArtifact, rec *deployments.DeploymentRecord) string {
	if o.history == nil {
		return ""
	}

	d, err := o.history.Record(context.WithoutCancel(ctx), deployments.RecordRequest{
		Network:      rec.Network,
		ContractName: artifact.Name,
		SourcePath:   artifact.SourcePath,
		Record:       rec,
		Outcome:      "confirmed",
		DeploymentData: map[string]any{
			"builder":         artifact.Builder,
			"compilerVersion": artifact.CompilerVersion,
		},
	})
	metrics.HistoryRecord(err == nil)
	if err != nil {
		o.logger.Warn("recording deployment failed",
			"network", rec.Network,
			"address", rec.ContractAddress.String(),
			"error", err,
		)
		return ""
	}
	r.report.HistoryID = d.ID
	return d.ID
}

func (o *Orchestrator) updateHistory(ctx context.Context, id string, result deployments.VerificationResult) {
	if o.history == nil || id == "" {
		return
	}
	err := o.history.UpdateVerification(context.WithoutCancel(ctx), id, result)
	metrics.HistoryRecord(err == nil)
	if err != nil {
		o.logger.Warn("updating deployment history failed", "id", id, "error", err)
	}
}

// classify maps a deployment error to its kind
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, networks.ErrConfiguration), errors.Is(err, deployments.ErrChainIDMismatch):
		return KindConfiguration
	case errors.Is(err, deployments.ErrEncoding):
		return KindEncoding
	case errors.Is(err, deployments.ErrConfirmationTimeout):
		return KindConfirmationTimeout
	default:
		return KindSubmission
	}
}

// run tracks one invocation through its states
type run struct {
	o      *Orchestrator
	report *Report
	state  State
	start  time.Time
}

func (o *Orchestrator) begin(network, contract string) *run {
	start := o.now()
	r := &run{
		o:     o,
		start: start,
		report: &Report{
			Network:   network,
			Contract:  contract,
			StartedAt: start,
		},
	}
	r.enter(StateResolving)
	return r
}

func (r *run) enter(s State) {
	from := r.state
	r.state = s

	r.o.logger.Debug("state transition",
		"network", r.report.Network,
		"contract", r.report.Contract,
		"from", from,
		"to", s,
	)
	metrics.StateEntered(string(s))
	if r.o.onTransition != nil {
		r.o.onTransition(Transition{
			From:     from,
			To:       s,
			Network:  r.report.Network,
			Contract: r.report.Contract,
			At:       r.o.now(),
		})
	}
}

func (r *run) fail(kind ErrorKind, err error) *Report {
	r.report.Outcome = OutcomeErrored
	r.report.ErrorKind = kind
	r.report.Error = err.Error()
	r.report.FailedIn = r.state
	r.enter(StateErrored)
	return r.finish()
}

func (r *run) succeed(outcome Outcome) *Report {
	r.report.Outcome = outcome
	r.enter(StateDone)
	return r.finish()
}

func (r *run) finish() *Report {
	elapsed := r.o.now().Sub(r.start)
	r.report.Elapsed = elapsed.Round(time.Millisecond).String()
	metrics.RunFinished(r.report.Network, string(r.report.Outcome), string(r.report.ErrorKind), elapsed)

	if r.report.Errored() {
		r.o.logger.Error("run failed",
			"network", r.report.Network,
			"contract", r.report.Contract,
			"error_kind", r.report.ErrorKind,
			"failed_in", r.report.FailedIn,
			"tx_hash", r.report.TxHash,
			"error", r.report.Error,
		)
		return r.report
	}

	r.o.logger.Info("run finished",
		"network", r.report.Network,
		"contract", r.report.Contract,
		"outcome", r.report.Outcome,
		"address", r.report.Address,
		"elapsed", r.report.Elapsed,
	)
	return r.report
}
