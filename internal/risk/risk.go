// Package risk combines structural features and the anomaly flag into a
// single non-negative risk score per record.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// highRiskReportingThreshold is the fixed cutoff for the informational
// high-risk count logged after each run. Never affects computed scores.
const highRiskReportingThreshold = 10.0

// Aggregator computes
//
//	risk = w_bank*same_bank_count + w_address*same_address_count + w_anomaly*[anomaly == -1]
//
// or, when configured, a CEL expression evaluated per record.
type Aggregator struct {
	weights domain.RiskWeights
	scorer  *expressionScorer // nil unless an expression override is set
}

// NewAggregator creates an aggregator with the weighted-sum formula. When
// expression is non-empty it is compiled as a CEL override; compilation
// errors are fatal at construction so a bad expression never reaches a run.
func NewAggregator(weights domain.RiskWeights, expression string) (*Aggregator, error) {
	a := &Aggregator{weights: weights}
	if expression != "" {
		scorer, err := newExpressionScorer(expression)
		if err != nil {
			return nil, fmt.Errorf("compile risk expression: %w", err)
		}
		a.scorer = scorer
	}
	return a, nil
}

// Aggregate attaches the risk_score column to a copy of the batch. When
// the feature or anomaly columns are missing, the input is returned
// unchanged with an explicit degraded status and the cause logged; callers
// must check the status, not assume the column exists.
func (a *Aggregator) Aggregate(batch domain.Batch) domain.StageResult {
	required := []string{domain.ColSameBankCount, domain.ColSameAddressCount, domain.ColAnomaly}
	if missing := batch.Columns.Missing(required...); len(missing) > 0 {
		slog.Error("risk aggregation skipped", "missing_columns", missing)
		return domain.Degraded(batch, fmt.Sprintf("missing columns %v", missing))
	}

	out := batch.Clone()
	highRisk := 0
	for i := range out.Records {
		out.Records[i].RiskScore = a.scoreRecord(&out.Records[i])
		if out.Records[i].RiskScore > highRiskReportingThreshold {
			highRisk++
		}
	}
	out.Columns.Add(domain.ColRiskScore)

	slog.Info("risk scoring complete",
		"records", out.Len(),
		"high_risk", highRisk,
	)

	return domain.OK(out)
}

func (a *Aggregator) scoreRecord(rec *domain.Record) float64 {
	if a.scorer != nil {
		score, err := a.scorer.score(rec)
		if err == nil {
			return score
		}
		slog.Error("risk expression failed, using weighted sum",
			"beneficiary_id", rec.BeneficiaryID,
			"error", err,
		)
	}

	score := a.weights.SameBank*float64(rec.SameBankCount) +
		a.weights.SameAddress*float64(rec.SameAddressCount)
	if rec.Anomaly == domain.AnomalyOutlier {
		score += a.weights.Anomaly
	}
	return score
}
