// Package outlier assigns per-record anomaly flags using an unsupervised
// decision boundary fit over the whole batch.
package outlier

// Detector is the capability interface for unsupervised outlier detection.
// The scorer thresholds the detector's scores at the contamination
// quantile, so alternative strategies (density-based, z-score ensembles)
// can be swapped in without touching callers.
type Detector interface {
	// Fit trains the detector on the batch.
	// data is row-major: one row per record, one column per feature.
	Fit(data [][]float64) error

	// Scores returns an anomaly score per row, higher = more anomalous.
	Scores(data [][]float64) ([]float64, error)
}

// DefaultFeatures is the canonical feature vector the scorer builds.
func DefaultFeatures() []string {
	return []string{"amount", "same_bank_count", "same_address_count"}
}
