package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/contraship/internal/networks"
	"github.com/pendergraft/contraship/internal/validation"
)

// Deployment errors. Every error returned by Deploy wraps exactly one of
// these or networks.ErrConfiguration.
var (
	ErrChainIDMismatch     = errors.New("chain ID mismatch")
	ErrSubmission          = errors.New("submission error")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// ConfirmationTimeoutError reports a transaction that was broadcast but not
// confirmed in time. It may still be mined later.
type ConfirmationTimeoutError struct {
	TxHash  common.Hash
	Address common.Address
	Timeout time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("%v: transaction %s not confirmed within %s (expected contract address %s)",
		ErrConfirmationTimeout, e.TxHash.Hex(), e.Timeout, e.Address.Hex())
}

func (e *ConfirmationTimeoutError) Unwrap() error {
	return ErrConfirmationTimeout
}

// Backend is the subset of an Ethereum JSON-RPC client a deployment uses.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// Dialer connects to a network's RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialRPC dials rpcURL with ethclient
func DialRPC(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Options tunes submission and confirmation
type Options struct {
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	// GasMarginPercent is added on top of the node's estimate
	GasMarginPercent int
}

// Deployer submits contract creations and waits for them to be mined
type Deployer struct {
	dial   Dialer
	opts   Options
	logger *slog.Logger
}

// NewDeployer creates a new deployer
func NewDeployer(dial Dialer, opts Options, logger *slog.Logger) *Deployer {
	if dial == nil {
		dial = DialRPC
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = 5 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 4 * time.Second
	}
	if opts.GasMarginPercent < 0 {
		opts.GasMarginPercent = 0
	}
	return &Deployer{dial: dial, opts: opts, logger: logger}
}

type prepared struct {
	backend  Backend
	signer   Signer
	chainID  *big.Int
	nonce    uint64
	code     []byte
	args     []byte
	estimate uint64
	gasLimit uint64
}

// Plan performs every step of Deploy up to signing and returns what would be sent
func (d *Deployer) Plan(ctx context.Context, req DeploymentRequest) (*Plan, error) {
	p, err := d.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer p.backend.Close()

	return &Plan{
		Network:          req.Network.Name,
		ChainID:          p.chainID.Uint64(),
		Deployer:         p.signer.Address(),
		Nonce:            p.nonce,
		PredictedAddress: crypto.CreateAddress(p.signer.Address(), p.nonce),
		GasEstimate:      p.estimate,
		GasLimit:         p.gasLimit,
		CreationCodeSize: len(p.code),
		ConstructorArgs:  p.args,
	}, nil
}

// Deploy submits the contract creation and blocks until it is mined with the
// network's required confirmations or the confirmation timeout expires.
func (d *Deployer) Deploy(ctx context.Context, req DeploymentRequest) (*DeploymentRecord, error) {
	p, err := d.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer p.backend.Close()

	tx, err := d.buildTx(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: pricing transaction: %v", ErrSubmission, err)
	}
	signed, err := p.signer.SignTx(tx, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: signing transaction: %v", ErrSubmission, err)
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: sending transaction: %v", ErrSubmission, err)
	}

	predicted := crypto.CreateAddress(p.signer.Address(), p.nonce)
	d.logger.Info("deployment submitted",
		"network", req.Network.Name,
		"contract", req.Artifact.Name,
		"tx_hash", signed.Hash().Hex(),
		"address", predicted.Hex(),
		"gas_limit", p.gasLimit,
	)
	if req.OnSubmitted != nil {
		req.OnSubmitted(signed.Hash(), predicted)
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.opts.ConfirmationTimeout)
	defer cancel()

	timeout := &ConfirmationTimeoutError{TxHash: signed.Hash(), Address: predicted, Timeout: d.opts.ConfirmationTimeout}

	receipt, err := bind.WaitMined(waitCtx, p.backend, signed)
	if err != nil {
		return nil, timeout
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted in block %s", ErrSubmission, signed.Hash().Hex(), receipt.BlockNumber)
	}

	address := receipt.ContractAddress
	if address == (common.Address{}) {
		address = predicted
	}

	confirmations, err := d.waitConfirmations(waitCtx, p.backend, receipt.BlockNumber.Uint64(), req.Network.Confirmations)
	if err != nil {
		return nil, timeout
	}

	code, err := p.backend.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: reading code at %s: %v", ErrSubmission, address.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: no code at %s after deployment", ErrSubmission, address.Hex())
	}

	d.logger.Info("deployment confirmed",
		"network", req.Network.Name,
		"contract", req.Artifact.Name,
		"address", address.Hex(),
		"block", receipt.BlockNumber.Uint64(),
		"confirmations", confirmations,
		"gas_used", receipt.GasUsed,
	)

	return &DeploymentRecord{
		ContractAddress:    validation.AddressFrom(address),
		TransactionHash:    signed.Hash(),
		Network:            req.Network.Name,
		ChainID:            p.chainID.Uint64(),
		Deployer:           p.signer.Address(),
		BlockNumber:        receipt.BlockNumber.Uint64(),
		BlockConfirmations: confirmations,
		GasUsed:            receipt.GasUsed,
		ConstructorArgs:    p.args,
	}, nil
}

// prepare encodes locally first so a bad argument never reaches the network
func (d *Deployer) prepare(ctx context.Context, req DeploymentRequest) (*prepared, error) {
	if req.Artifact == nil {
		return nil, fmt.Errorf("%w: no artifact", ErrEncoding)
	}
	args, err := EncodeConstructorArgs(req.Artifact.ConstructorInputs(), req.ConstructorArgs)
	if err != nil {
		return nil, err
	}
	creation, err := req.Artifact.CreationCode(req.Libraries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	code := append(append([]byte{}, creation...), args...)

	key, err := req.Network.PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: network %q: %v", networks.ErrConfiguration, req.Network.Name, err)
	}
	signer := NewLocalSigner(key)

	backend, err := d.dial(ctx, req.Network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrSubmission, req.Network.Name, err)
	}

	p, err := d.preflight(ctx, backend, req, signer, code)
	if err != nil {
		backend.Close()
		return nil, err
	}
	p.args = args
	return p, nil
}

func (d *Deployer) preflight(ctx context.Context, backend Backend, req DeploymentRequest, signer Signer, code []byte) (*prepared, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading chain ID: %v", ErrSubmission, err)
	}
	if req.Network.ChainID != 0 && chainID.Uint64() != req.Network.ChainID {
		return nil, fmt.Errorf("%w: network %q expects chain %d, node reports %s",
			ErrChainIDMismatch, req.Network.Name, req.Network.ChainID, chainID)
	}

	nonce, err := backend.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: reading nonce: %v", ErrSubmission, err)
	}

	estimate, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  signer.Address(),
		Value: big.NewInt(0),
		Data:  code,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: estimating gas: %v", ErrSubmission, err)
	}
	if estimate > req.Network.GasCeiling {
		return nil, fmt.Errorf("%w: gas estimate %d exceeds ceiling %d", ErrSubmission, estimate, req.Network.GasCeiling)
	}

	gasLimit := estimate + estimate*uint64(d.opts.GasMarginPercent)/100
	if gasLimit > req.Network.GasCeiling {
		gasLimit = req.Network.GasCeiling
	}

	return &prepared{
		backend:  backend,
		signer:   signer,
		chainID:  chainID,
		nonce:    nonce,
		code:     code,
		estimate: estimate,
		gasLimit: gasLimit,
	}, nil
}

// buildTx prices a dynamic fee transaction when the chain reports a base fee
func (d *Deployer) buildTx(ctx context.Context, p *prepared) (*types.Transaction, error) {
	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}

	if head.BaseFee != nil {
		tip, err := p.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, err
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   p.chainID,
			Nonce:     p.nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       p.gasLimit,
			Value:     big.NewInt(0),
			Data:      p.code,
		}), nil
	}

	gasPrice, err := p.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return types.NewContractCreation(p.nonce, big.NewInt(0), p.gasLimit, gasPrice, p.code), nil
}

// waitConfirmations polls the head until minedIn is buried want blocks deep
func (d *Deployer) waitConfirmations(ctx context.Context, backend Backend, minedIn, want uint64) (uint64, error) {
	if want <= 1 {
		return 1, nil
	}

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		head, err := backend.BlockNumber(ctx)
		if err != nil {
			d.logger.Debug("reading block number", "error", err)
		} else if head >= minedIn {
			if got := head - minedIn + 1; got >= want {
				return got, nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
