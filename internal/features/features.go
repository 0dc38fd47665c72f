// Package features computes structural duplication features over a batch.
package features

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Aggregator attaches per-record group-size features: how many records in
// the batch share a record's bank account, and how many share its address.
// A record always counts itself, so both counts are >= 1.
type Aggregator struct{}

// NewAggregator creates a feature aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Augment returns a new batch with same_bank_count and same_address_count
// populated. The computation is a pure function of the full batch: one pass
// builds the group-size maps, a second pass attaches the counts. The input
// batch is not mutated.
func (a *Aggregator) Augment(batch domain.Batch) (domain.Batch, error) {
	required := []string{domain.ColBankAccount, domain.ColAddress}
	if missing := batch.Columns.Missing(required...); len(missing) > 0 {
		return domain.Batch{}, fmt.Errorf("%w: missing columns %v", domain.ErrSchema, missing)
	}

	bankGroups := make(map[int64]int, len(batch.Records))
	addressGroups := make(map[string]int, len(batch.Records))
	for i := range batch.Records {
		bankGroups[batch.Records[i].BankAccount]++
		addressGroups[batch.Records[i].Address]++
	}

	out := batch.Clone()
	for i := range out.Records {
		out.Records[i].SameBankCount = bankGroups[out.Records[i].BankAccount]
		out.Records[i].SameAddressCount = addressGroups[out.Records[i].Address]
	}
	out.Columns.Add(domain.ColSameBankCount, domain.ColSameAddressCount)

	slog.Info("feature aggregation complete",
		"records", out.Len(),
		"bank_groups", len(bankGroups),
		"address_groups", len(addressGroups),
	)

	return out, nil
}
