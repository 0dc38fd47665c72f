package dedupe

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// progressInterval is how many outer rows a partition scans between
// progress log lines. Reporting cadence only; never changes which pairs
// are found.
const progressInterval = 1000

// Matcher scans every unordered pair of records and reports those whose
// name similarity strictly exceeds the threshold.
type Matcher struct {
	threshold int
	workers   int
}

// NewMatcher creates a matcher. threshold is in [0, 100]; workers bounds
// the parallel scan (minimum 1).
func NewMatcher(threshold, workers int) *Matcher {
	if workers < 1 {
		workers = 1
	}
	return &Matcher{threshold: threshold, workers: workers}
}

// FindPairs compares all n*(n-1)/2 unordered pairs of distinct records and
// returns the pairs with similarity > threshold, each with IDA < IDB,
// sorted by (IDA, IDB). The pair space is partitioned across workers by
// outer-row index and partition results merged by concatenation; the
// partitioning cannot change the reported set.
//
// Records without a usable name or id are a reported, non-fatal condition:
// the matcher logs the cause and returns an empty list.
func (m *Matcher) FindPairs(ctx context.Context, batch domain.Batch) ([]domain.DuplicatePair, error) {
	if missing := batch.Columns.Missing(domain.ColName, domain.ColBeneficiaryID); len(missing) > 0 {
		slog.Error("duplicate matching skipped", "missing_columns", missing)
		return []domain.DuplicatePair{}, nil
	}

	n := batch.Len()
	if n < 2 {
		return []domain.DuplicatePair{}, nil
	}

	// Normalize every name once; the O(n^2) loop then compares canonical
	// strings directly.
	normalized := make([]string, n)
	for i := range batch.Records {
		normalized[i] = normalizeName(batch.Records[i].Name)
	}

	workers := m.workers
	if workers > n-1 {
		workers = n - 1
	}

	results := make([][]domain.DuplicatePair, workers)
	var scanned int64
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var local []domain.DuplicatePair
			rows := 0
			// Stride over outer rows so partitions get comparable work:
			// early rows carry far more comparisons than late ones.
			for i := w; i < n-1; i += workers {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				for j := i + 1; j < n; j++ {
					score := levenshteinRatio(normalized[i], normalized[j])
					if score > m.threshold {
						local = append(local, newPair(
							batch.Records[i].BeneficiaryID,
							batch.Records[j].BeneficiaryID,
							score,
						))
					}
				}
				rows++
				if rows%progressInterval == 0 {
					mu.Lock()
					scanned += progressInterval
					slog.Info("duplicate scan progress", "rows_scanned", scanned, "total_rows", n)
					mu.Unlock()
				}
			}
			results[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]domain.DuplicatePair, 0)
	for _, part := range results {
		pairs = append(pairs, part...)
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].IDA != pairs[b].IDA {
			return pairs[a].IDA < pairs[b].IDA
		}
		return pairs[a].IDB < pairs[b].IDB
	})

	slog.Info("duplicate matching complete",
		"records", n,
		"pairs", len(pairs),
		"threshold", m.threshold,
	)

	return pairs, nil
}

// newPair orders ids so IDA < IDB always holds.
func newPair(a, b, score int) domain.DuplicatePair {
	if a > b {
		a, b = b, a
	}
	return domain.DuplicatePair{IDA: a, IDB: b, Similarity: score}
}
