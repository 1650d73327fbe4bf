package metrics

import "time"

// RunFinished records the final outcome of one deployment run.
func RunFinished(network, outcome, errorKind string, d time.Duration) {
	if !enabled {
		return
	}
	runsTotal.WithLabelValues(network, outcome, errorKind).Inc()
	runDuration.WithLabelValues(network, outcome).Observe(d.Seconds())
}

// StateEntered records a run state transition.
func StateEntered(state string) {
	if !enabled {
		return
	}
	transitionsTotal.WithLabelValues(state).Inc()
}

// GasUsed adds the gas of a confirmed deployment.
func GasUsed(network string, gas uint64) {
	if !enabled {
		return
	}
	gasUsedTotal.WithLabelValues(network).Add(float64(gas))
}

// Verification records a finished verification.
func Verification(network, status string, attempts int) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(network, status).Inc()
	verificationAttempts.WithLabelValues(network).Observe(float64(attempts))
}

// HistoryRecord records a history write.
func HistoryRecord(ok bool) {
	if !enabled {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	historyRecordTotal.WithLabelValues(status).Inc()
}
