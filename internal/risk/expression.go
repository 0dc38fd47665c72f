package risk

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// expressionScorer evaluates a CEL expression per record as a custom
// scoring formula, e.g.
//
//	"2.0 * same_bank_count + 2.0 * same_address_count + (is_outlier ? 5.0 : 0.0)"
//
// The expression must evaluate to a number.
type expressionScorer struct {
	program cel.Program
}

func newExpressionScorer(expression string) (*expressionScorer, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("same_bank_count", cel.IntType),
		cel.Variable("same_address_count", cel.IntType),
		cel.Variable("is_outlier", cel.BoolType),
		cel.Variable("scheme", cel.StringType),
		cel.Variable("district", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid expression: %w", issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build program: %w", err)
	}

	return &expressionScorer{program: program}, nil
}

func (s *expressionScorer) score(rec *domain.Record) (float64, error) {
	out, _, err := s.program.Eval(map[string]any{
		"amount":             float64(rec.Amount),
		"same_bank_count":    rec.SameBankCount,
		"same_address_count": rec.SameAddressCount,
		"is_outlier":         rec.Anomaly == domain.AnomalyOutlier,
		"scheme":             rec.Scheme,
		"district":           rec.District,
	})
	if err != nil {
		return 0, err
	}

	switch v := out.(type) {
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expression returned %T, want a number", out)
	}
}
