package orchestrator

import (
	"time"

	verification "github.com/pendergraft/contraship/internal/verification/domain"
)

// Report is the result of one run. Address and TxHash are set whenever a
// transaction was broadcast, including confirmation timeouts.
type Report struct {
	Outcome   Outcome   `json:"outcome" yaml:"outcome"`
	ErrorKind ErrorKind `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	// FailedIn is the state the run was in when it errored
	FailedIn State `json:"failedIn,omitempty" yaml:"failedIn,omitempty"`

	Network         string `json:"network" yaml:"network"`
	ChainID         uint64 `json:"chainId,omitempty" yaml:"chainId,omitempty"`
	Contract        string `json:"contract" yaml:"contract"`
	Address         string `json:"address,omitempty" yaml:"address,omitempty"`
	TxHash          string `json:"txHash,omitempty" yaml:"txHash,omitempty"`
	Deployer        string `json:"deployer,omitempty" yaml:"deployer,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty" yaml:"blockNumber,omitempty"`
	Confirmations   uint64 `json:"confirmations,omitempty" yaml:"confirmations,omitempty"`
	GasUsed         uint64 `json:"gasUsed,omitempty" yaml:"gasUsed,omitempty"`
	ConstructorArgs string `json:"constructorArgs,omitempty" yaml:"constructorArgs,omitempty"`

	Verification        *VerificationReport `json:"verification,omitempty" yaml:"verification,omitempty"`
	VerificationSkipped bool                `json:"verificationSkipped,omitempty" yaml:"verificationSkipped,omitempty"`

	Plan *PlanReport `json:"plan,omitempty" yaml:"plan,omitempty"`

	HistoryID string    `json:"historyId,omitempty" yaml:"historyId,omitempty"`
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`
	Elapsed   string    `json:"elapsed" yaml:"elapsed"`
}

// VerificationReport is the final verification outcome of a run
type VerificationReport struct {
	Status   verification.Status `json:"status" yaml:"status"`
	Reason   string              `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts int                 `json:"attempts" yaml:"attempts"`
	GUID     string              `json:"guid,omitempty" yaml:"guid,omitempty"`
}

// PlanReport is what a dry run would submit
type PlanReport struct {
	Deployer         string `json:"deployer" yaml:"deployer"`
	Nonce            uint64 `json:"nonce" yaml:"nonce"`
	PredictedAddress string `json:"predictedAddress" yaml:"predictedAddress"`
	GasEstimate      uint64 `json:"gasEstimate" yaml:"gasEstimate"`
	GasLimit         uint64 `json:"gasLimit" yaml:"gasLimit"`
	CreationCodeSize int    `json:"creationCodeSize" yaml:"creationCodeSize"`
}

// Errored reports whether the run failed without a confirmed contract
func (r *Report) Errored() bool {
	return r.Outcome == OutcomeErrored
}

func verificationReport(out verification.Outcome) *VerificationReport {
	return &VerificationReport{
		Status:   out.Status,
		Reason:   out.Reason,
		Attempts: out.Attempts,
		GUID:     out.GUID,
	}
}
