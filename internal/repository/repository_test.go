package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.ScoreRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func testRecords() []domain.Record {
	return []domain.Record{
		{BeneficiaryID: 1, Name: "Alice Rao", Phone: "555-0101", Address: "12 Main St",
			BankAccount: 10000001, Scheme: "Food Subsidy", Amount: 5000, District: "North",
			Date: "2024-01-15", SameBankCount: 2, SameAddressCount: 1,
			Anomaly: domain.AnomalyOutlier, RiskScore: 11},
		{BeneficiaryID: 2, Name: "Bob Kumar", Phone: "555-0102", Address: "34 Oak Ave",
			BankAccount: 10000001, Scheme: "Farmer Aid", Amount: 2000, District: "South",
			Date: "2024-02-20", SameBankCount: 2, SameAddressCount: 1,
			Anomaly: domain.AnomalyNormal, RiskScore: 6},
		{BeneficiaryID: 3, Name: "Carol Singh", Phone: "555-0103", Address: "56 Pine Rd",
			BankAccount: 10000003, Scheme: "Scholarship", Amount: 10000, District: "East",
			Date: "2024-03-01", SameBankCount: 1, SameAddressCount: 1,
			Anomaly: domain.AnomalyOutlier, RiskScore: 9},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("ReplaceAndGet", func(t *testing.T) {
		if err := repo.ReplaceScores(ctx, testRecords()); err != nil {
			t.Fatalf("ReplaceScores failed: %v", err)
		}

		rec, err := repo.GetBeneficiary(ctx, 1)
		if err != nil {
			t.Fatalf("GetBeneficiary failed: %v", err)
		}
		if rec.Name != "Alice Rao" || rec.RiskScore != 11 || rec.Anomaly != domain.AnomalyOutlier {
			t.Errorf("unexpected record: %+v", rec)
		}
	})

	t.Run("GetMissingIsNotFound", func(t *testing.T) {
		_, err := repo.GetBeneficiary(ctx, 999)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListAnomalies", func(t *testing.T) {
		records, err := repo.ListAnomalies(ctx, nil, 100)
		if err != nil {
			t.Fatalf("ListAnomalies failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d anomalies, want 2", len(records))
		}
		// Stored order: batch order, not id or risk order.
		if records[0].BeneficiaryID != 1 || records[1].BeneficiaryID != 3 {
			t.Errorf("anomalies out of stored order: %d, %d",
				records[0].BeneficiaryID, records[1].BeneficiaryID)
		}
	})

	t.Run("ListAnomaliesMinRisk", func(t *testing.T) {
		minRisk := 10.0
		records, err := repo.ListAnomalies(ctx, &minRisk, 100)
		if err != nil {
			t.Fatalf("ListAnomalies failed: %v", err)
		}
		if len(records) != 1 || records[0].BeneficiaryID != 1 {
			t.Errorf("min_risk filter returned %d records", len(records))
		}
	})

	t.Run("ListHighRiskSortedDescending", func(t *testing.T) {
		records, err := repo.ListHighRisk(ctx, 0, 100)
		if err != nil {
			t.Fatalf("ListHighRisk failed: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("got %d records, want 3", len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].RiskScore > records[i-1].RiskScore {
				t.Errorf("not sorted descending at %d", i)
			}
		}
	})

	t.Run("ListHighRiskThresholdAndLimit", func(t *testing.T) {
		records, err := repo.ListHighRisk(ctx, 7, 1)
		if err != nil {
			t.Fatalf("ListHighRisk failed: %v", err)
		}
		if len(records) != 1 || records[0].BeneficiaryID != 1 {
			t.Errorf("expected only the highest-risk record, got %+v", records)
		}
	})

	t.Run("ZeroRowsIsEmptyNotError", func(t *testing.T) {
		records, err := repo.ListHighRisk(ctx, 1e9, 10)
		if err != nil {
			t.Fatalf("ListHighRisk failed: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("got %d records, want 0", len(records))
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		if _, err := repo.ListHighRisk(ctx, 0, 0); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ReplaceIsFullSwap", func(t *testing.T) {
		replacement := []domain.Record{
			{BeneficiaryID: 9, Name: "Dev Sharma", Phone: "555-0109", Address: "9 Elm Ct",
				BankAccount: 10000009, Scheme: "Food Subsidy", Amount: 5000, District: "West",
				Date: "2024-04-01", SameBankCount: 1, SameAddressCount: 1,
				Anomaly: domain.AnomalyNormal, RiskScore: 4},
		}
		if err := repo.ReplaceScores(ctx, replacement); err != nil {
			t.Fatalf("ReplaceScores failed: %v", err)
		}

		if _, err := repo.GetBeneficiary(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
			t.Error("old run's rows survived the swap")
		}
		if _, err := repo.GetBeneficiary(ctx, 9); err != nil {
			t.Errorf("new run's rows missing: %v", err)
		}
	})

	t.Run("DuplicatePairs", func(t *testing.T) {
		pairs := []domain.DuplicatePair{
			{IDA: 1, IDB: 2, Similarity: 95},
			{IDA: 2, IDB: 3, Similarity: 100},
		}
		if err := repo.ReplaceDuplicatePairs(ctx, pairs); err != nil {
			t.Fatalf("ReplaceDuplicatePairs failed: %v", err)
		}

		got, err := repo.ListDuplicatePairs(ctx, 10)
		if err != nil {
			t.Fatalf("ListDuplicatePairs failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d pairs, want 2", len(got))
		}
		if got[0].Similarity != 100 {
			t.Errorf("pairs not sorted by descending similarity: %+v", got)
		}
	})

	t.Run("RecordRun", func(t *testing.T) {
		run := &domain.PipelineRun{
			ID:             "run-001",
			StartedAt:      time.Now().UTC().Add(-time.Second),
			FinishedAt:     time.Now().UTC(),
			Status:         domain.RunSucceeded,
			RecordCount:    3,
			OutlierCount:   2,
			HighRiskCount:  1,
			DuplicateCount: 2,
		}
		if err := repo.RecordRun(ctx, run); err != nil {
			t.Errorf("RecordRun failed: %v", err)
		}
	})
}
