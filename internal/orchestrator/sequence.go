package orchestrator

import "context"

// RunSequence runs invocations in order. Each is an independent run with its
// own report. Unless keepGoing is set, the first errored run ends the
// sequence and later invocations are not attempted. A cancelled context
// stops the sequence before the next run.
func (o *Orchestrator) RunSequence(ctx context.Context, invs []Invocation, keepGoing bool) []*Report {
	reports := make([]*Report, 0, len(invs))
	for i, inv := range invs {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("sequence interrupted", "next", inv.Contract, "remaining", len(invs)-i, "error", err)
			break
		}

		report := o.Run(ctx, inv)
		reports = append(reports, report)

		if report.Errored() && !keepGoing && i < len(invs)-1 {
			o.logger.Warn("sequence stopped",
				"network", inv.Network,
				"contract", inv.Contract,
				"remaining", len(invs)-i-1,
			)
			break
		}
	}
	return reports
}
