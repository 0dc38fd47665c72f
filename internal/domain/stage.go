package domain

// StageStatus describes how a pipeline stage completed.
type StageStatus string

const (
	// StageOK means the stage computed its output columns.
	StageOK StageStatus = "ok"

	// StageDegraded means the stage could not compute its output and passed
	// its input through unchanged. Non-fatal, but downstream consumers must
	// not assume the stage's output columns exist.
	StageDegraded StageStatus = "degraded"

	// StageFailed means the stage aborted the run. Used only in run
	// summaries; scoring stages themselves return OK or Degraded.
	StageFailed StageStatus = "failed"
)

// StageResult is the outcome of a scoring stage. Degradation is an explicit
// status rather than a silently unchanged batch, so callers can never
// mistake a skipped stage for a computed one.
type StageResult struct {
	Batch  Batch
	Status StageStatus
	Reason string
}

// OK wraps a successfully computed batch.
func OK(b Batch) StageResult {
	return StageResult{Batch: b, Status: StageOK}
}

// Degraded wraps an unmodified input batch with the reason the stage
// could not run.
func Degraded(b Batch, reason string) StageResult {
	return StageResult{Batch: b, Status: StageDegraded, Reason: reason}
}
