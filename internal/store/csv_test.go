package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beneficiaries.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const validCSV = `beneficiary_id,name,phone,address,bank_account,scheme,amount,district,date
1,Alice Rao,555-0101,12 Main St,10000001,Food Subsidy,5000,North,2024-01-15
2,Bob Kumar,555-0102,34 Oak Ave,10000002,Farmer Aid,2000,South,2024-02-20
`

func TestLoad(t *testing.T) {
	t.Run("ValidFile", func(t *testing.T) {
		batch, err := NewCSVStore(writeFile(t, validCSV)).Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if batch.Len() != 2 {
			t.Fatalf("loaded %d records, want 2", batch.Len())
		}

		rec := batch.Records[0]
		if rec.BeneficiaryID != 1 || rec.Name != "Alice Rao" || rec.BankAccount != 10000001 || rec.Amount != 5000 {
			t.Errorf("unexpected first record: %+v", rec)
		}
		if !batch.Columns.Has(domain.RawColumns()...) {
			t.Error("raw columns not all marked present")
		}
		if batch.Columns.Has(domain.ColSameBankCount) {
			t.Error("derived column marked present on raw load")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := NewCSVStore(filepath.Join(t.TempDir(), "nope.csv")).Load()
		if !errors.Is(err, domain.ErrLoad) {
			t.Errorf("expected ErrLoad, got %v", err)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		path := writeFile(t, "beneficiary_id,name\n1,Alice Rao\n")
		_, err := NewCSVStore(path).Load()
		if !errors.Is(err, domain.ErrSchema) {
			t.Errorf("expected ErrSchema, got %v", err)
		}
	})

	t.Run("NonNumericID", func(t *testing.T) {
		path := writeFile(t, `beneficiary_id,name,phone,address,bank_account,scheme,amount,district,date
abc,Alice Rao,555-0101,12 Main St,10000001,Food Subsidy,5000,North,2024-01-15
`)
		_, err := NewCSVStore(path).Load()
		if !errors.Is(err, domain.ErrSchema) {
			t.Errorf("expected ErrSchema, got %v", err)
		}
	})

	t.Run("HeaderOnly", func(t *testing.T) {
		path := writeFile(t, "beneficiary_id,name,phone,address,bank_account,scheme,amount,district,date\n")
		batch, err := NewCSVStore(path).Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if batch.Len() != 0 {
			t.Errorf("loaded %d records, want 0", batch.Len())
		}
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	store := NewCSVStore(path)

	batch := domain.NewBatch([]domain.Record{
		{
			BeneficiaryID: 7, Name: "Carol Singh", Phone: "555-0107",
			Address: "9 Elm Ct", BankAccount: 12345678, Scheme: "Scholarship",
			Amount: 10000, District: "East", Date: "2024-03-01",
			SameBankCount: 2, SameAddressCount: 1,
			Anomaly: domain.AnomalyOutlier, RiskScore: 11,
		},
	})
	batch.Columns.Add(
		domain.ColSameBankCount, domain.ColSameAddressCount,
		domain.ColAnomaly, domain.ColRiskScore,
	)

	if err := store.Save(batch); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("loaded %d records, want 1", loaded.Len())
	}

	rec := loaded.Records[0]
	if rec.BeneficiaryID != 7 || rec.SameBankCount != 2 || rec.Anomaly != domain.AnomalyOutlier || rec.RiskScore != 11 {
		t.Errorf("round trip mismatch: %+v", rec)
	}
	if !loaded.Columns.Has(domain.ColRiskScore) {
		t.Error("derived columns lost in round trip")
	}
}
