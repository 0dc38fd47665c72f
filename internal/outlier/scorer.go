package outlier

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Scorer flags approximately a contamination fraction of each batch as
// outliers using a pluggable detection strategy.
type Scorer struct {
	contamination float64
	features      []string
	newDetector   func() Detector
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithFeatures overrides the canonical feature vector.
func WithFeatures(features []string) Option {
	return func(s *Scorer) { s.features = features }
}

// WithDetector swaps the detection strategy. The factory is invoked once
// per batch so no fitted state leaks between runs.
func WithDetector(factory func() Detector) Option {
	return func(s *Scorer) { s.newDetector = factory }
}

// NewScorer creates a scorer with the isolation-forest default strategy.
func NewScorer(contamination float64, seed int64, opts ...Option) *Scorer {
	s := &Scorer{
		contamination: contamination,
		features:      DefaultFeatures(),
		newDetector:   func() Detector { return NewIsolationForest(seed) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score attaches the anomaly column to a copy of the batch: -1 for
// outliers, 1 for normal records. When a required feature column is
// missing or the model cannot fit, the batch is not failed: the input is
// returned unchanged with an explicit degraded status and the cause logged.
func (s *Scorer) Score(batch domain.Batch) domain.StageResult {
	if missing := batch.Columns.Missing(featureColumns(s.features)...); len(missing) > 0 {
		slog.Error("outlier scoring skipped", "missing_columns", missing)
		return domain.Degraded(batch, fmt.Sprintf("missing feature columns %v", missing))
	}
	if batch.Len() == 0 {
		out := batch.Clone()
		out.Columns.Add(domain.ColAnomaly)
		return domain.OK(out)
	}

	matrix := make([][]float64, batch.Len())
	for i := range batch.Records {
		matrix[i] = featureVector(&batch.Records[i], s.features)
	}

	detector := s.newDetector()
	if err := detector.Fit(matrix); err != nil {
		slog.Error("outlier model failed to fit", "error", err)
		return domain.Degraded(batch, fmt.Sprintf("model fit: %v", err))
	}
	scores, err := detector.Scores(matrix)
	if err != nil {
		slog.Error("outlier model failed to score", "error", err)
		return domain.Degraded(batch, fmt.Sprintf("model score: %v", err))
	}

	out := batch.Clone()
	flagged := flagTop(scores, s.contamination)
	for i := range out.Records {
		if flagged[i] {
			out.Records[i].Anomaly = domain.AnomalyOutlier
		} else {
			out.Records[i].Anomaly = domain.AnomalyNormal
		}
	}
	out.Columns.Add(domain.ColAnomaly)

	outliers := 0
	for _, f := range flagged {
		if f {
			outliers++
		}
	}
	slog.Info("outlier detection complete",
		"records", out.Len(),
		"outliers", outliers,
		"contamination", s.contamination,
	)

	return domain.OK(out)
}

// flagTop marks the contamination quantile of highest-scoring rows.
// Ties are broken by row order so a fixed batch always flags the same set.
func flagTop(scores []float64, contamination float64) []bool {
	n := len(scores)
	k := int(math.Round(contamination * float64(n)))
	if k < 0 {
		k = 0
	}
	if k > n {
		k = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	flagged := make([]bool, n)
	for _, i := range order[:k] {
		flagged[i] = true
	}
	return flagged
}

func featureColumns(features []string) []string {
	cols := make([]string, len(features))
	copy(cols, features)
	return cols
}

func featureVector(rec *domain.Record, features []string) []float64 {
	vec := make([]float64, len(features))
	for i, f := range features {
		switch f {
		case domain.ColAmount:
			vec[i] = float64(rec.Amount)
		case domain.ColSameBankCount:
			vec[i] = float64(rec.SameBankCount)
		case domain.ColSameAddressCount:
			vec[i] = float64(rec.SameAddressCount)
		case domain.ColBankAccount:
			vec[i] = float64(rec.BankAccount)
		case domain.ColBeneficiaryID:
			vec[i] = float64(rec.BeneficiaryID)
		}
	}
	return vec
}
