package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/contraship/internal/orchestrator"
)

// resolveFormat picks the output format. Without --output, terminals get
// text and pipes get JSON so scripts can parse reports.
func resolveFormat(w io.Writer) (string, error) {
	switch outputFormat {
	case "text", "json", "yaml":
		return outputFormat, nil
	case "":
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "text", nil
	}
	return "json", nil
}

// render writes v as JSON or YAML, or calls text for the text format
func render(w io.Writer, v any, text func(io.Writer) error) error {
	format, err := resolveFormat(w)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

// printReport renders a run report and turns an errored run into exit code 1
func printReport(w io.Writer, report *orchestrator.Report) error {
	if err := render(w, report, func(w io.Writer) error { return reportText(w, report) }); err != nil {
		return err
	}
	if report.Errored() {
		return &ExitError{Code: 1, Err: fmt.Errorf("%s: %s", report.ErrorKind, report.Error)}
	}
	return nil
}

func reportText(w io.Writer, r *orchestrator.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}

	row("Outcome", string(r.Outcome))
	if r.Errored() {
		row("Error kind", string(r.ErrorKind))
		row("Failed in", string(r.FailedIn))
		row("Error", r.Error)
	}

	network := r.Network
	if r.ChainID != 0 {
		network = fmt.Sprintf("%s (chain %d)", r.Network, r.ChainID)
	}
	row("Network", network)
	row("Contract", r.Contract)
	row("Address", r.Address)
	row("Tx hash", r.TxHash)
	row("Deployer", r.Deployer)
	if r.BlockNumber != 0 {
		row("Block", fmt.Sprintf("%d (%d confirmations)", r.BlockNumber, r.Confirmations))
	}
	if r.GasUsed != 0 {
		row("Gas used", fmt.Sprintf("%d", r.GasUsed))
	}
	if r.ConstructorArgs != "" {
		row("Constructor args", "0x"+r.ConstructorArgs)
	}

	if p := r.Plan; p != nil {
		row("Plan", "dry run, nothing submitted")
		row("Deployer", p.Deployer)
		row("Nonce", fmt.Sprintf("%d", p.Nonce))
		row("Predicted address", p.PredictedAddress)
		row("Gas estimate", fmt.Sprintf("%d (limit %d)", p.GasEstimate, p.GasLimit))
		row("Creation code", fmt.Sprintf("%d bytes", p.CreationCodeSize))
	}

	switch {
	case r.Verification != nil:
		v := r.Verification
		status := fmt.Sprintf("%s after %d attempt(s)", v.Status, v.Attempts)
		if v.Reason != "" {
			status += ": " + v.Reason
		}
		row("Verification", status)
		row("Verification GUID", v.GUID)
	case r.VerificationSkipped && r.Plan == nil && !r.Errored():
		row("Verification", "skipped")
	}

	row("History ID", r.HistoryID)
	row("Elapsed", r.Elapsed)
	return tw.Flush()
}
