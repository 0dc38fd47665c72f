// Package store reads and writes beneficiary datasets as CSV files.
package store

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CSVStore implements domain.RecordStore over a single CSV file with a
// header row. Column order is header-driven, not positional.
type CSVStore struct {
	path string
}

// NewCSVStore creates a store for the given file path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Load reads and validates the dataset. A missing or unreadable file is
// ErrLoad; absent required columns or a non-numeric id column is ErrSchema.
func (s *CSVStore) Load() (domain.Batch, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("%w: %s: %v", domain.ErrLoad, s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return domain.Batch{}, fmt.Errorf("%w: reading header of %s: %v", domain.ErrLoad, s.path, err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[col] = i
	}
	if missing := missingColumns(index, domain.RawColumns()); len(missing) > 0 {
		return domain.Batch{}, fmt.Errorf("%w: missing required columns %v", domain.ErrSchema, missing)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return domain.Batch{}, fmt.Errorf("%w: reading rows of %s: %v", domain.ErrLoad, s.path, err)
	}

	records := make([]domain.Record, 0, len(rows))
	for n, row := range rows {
		rec, err := parseRow(row, index)
		if err != nil {
			return domain.Batch{}, fmt.Errorf("%w: row %d: %v", domain.ErrSchema, n+2, err)
		}
		records = append(records, rec)
	}

	columns := domain.NewColumnSet(header...)
	slog.Info("loaded records", "path", s.path, "count", len(records))

	return domain.Batch{Records: records, Columns: columns}, nil
}

// Save writes the batch with its full column set, creating the parent
// directory if needed.
func (s *CSVStore) Save(batch domain.Batch) error {
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", s.path, err)
		}
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", s.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := orderedColumns(batch.Columns)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i := range batch.Records {
		if err := w.Write(formatRow(&batch.Records[i], header)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", s.path, err)
	}

	slog.Info("saved records", "path", s.path, "count", len(batch.Records))
	return nil
}

func missingColumns(index map[string]int, required []string) []string {
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func parseRow(row []string, index map[string]int) (domain.Record, error) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	id, err := strconv.Atoi(field(domain.ColBeneficiaryID))
	if err != nil {
		return domain.Record{}, fmt.Errorf("beneficiary_id must be numeric, got %q", field(domain.ColBeneficiaryID))
	}
	bank, err := strconv.ParseInt(field(domain.ColBankAccount), 10, 64)
	if err != nil {
		return domain.Record{}, fmt.Errorf("bank_account must be numeric, got %q", field(domain.ColBankAccount))
	}
	amount, err := strconv.ParseInt(field(domain.ColAmount), 10, 64)
	if err != nil {
		return domain.Record{}, fmt.Errorf("amount must be numeric, got %q", field(domain.ColAmount))
	}

	rec := domain.Record{
		BeneficiaryID: id,
		Name:          field(domain.ColName),
		Phone:         field(domain.ColPhone),
		Address:       field(domain.ColAddress),
		BankAccount:   bank,
		Scheme:        field(domain.ColScheme),
		Amount:        amount,
		District:      field(domain.ColDistrict),
		Date:          field(domain.ColDate),
	}

	// Derived columns round-trip when present so previously scored output
	// can be reloaded.
	if _, ok := index[domain.ColSameBankCount]; ok {
		rec.SameBankCount, _ = strconv.Atoi(field(domain.ColSameBankCount))
	}
	if _, ok := index[domain.ColSameAddressCount]; ok {
		rec.SameAddressCount, _ = strconv.Atoi(field(domain.ColSameAddressCount))
	}
	if _, ok := index[domain.ColAnomaly]; ok {
		rec.Anomaly, _ = strconv.Atoi(field(domain.ColAnomaly))
	}
	if _, ok := index[domain.ColRiskScore]; ok {
		rec.RiskScore, _ = strconv.ParseFloat(field(domain.ColRiskScore), 64)
	}

	return rec, nil
}

// orderedColumns returns the batch's columns in canonical table order.
func orderedColumns(set domain.ColumnSet) []string {
	canonical := []string{
		domain.ColBeneficiaryID, domain.ColName, domain.ColPhone, domain.ColAddress,
		domain.ColBankAccount, domain.ColScheme, domain.ColAmount, domain.ColDistrict,
		domain.ColDate, domain.ColSameBankCount, domain.ColSameAddressCount,
		domain.ColAnomaly, domain.ColRiskScore,
	}
	var cols []string
	for _, c := range canonical {
		if set.Has(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func formatRow(rec *domain.Record, header []string) []string {
	row := make([]string, len(header))
	for i, col := range header {
		switch col {
		case domain.ColBeneficiaryID:
			row[i] = strconv.Itoa(rec.BeneficiaryID)
		case domain.ColName:
			row[i] = rec.Name
		case domain.ColPhone:
			row[i] = rec.Phone
		case domain.ColAddress:
			row[i] = rec.Address
		case domain.ColBankAccount:
			row[i] = strconv.FormatInt(rec.BankAccount, 10)
		case domain.ColScheme:
			row[i] = rec.Scheme
		case domain.ColAmount:
			row[i] = strconv.FormatInt(rec.Amount, 10)
		case domain.ColDistrict:
			row[i] = rec.District
		case domain.ColDate:
			row[i] = rec.Date
		case domain.ColSameBankCount:
			row[i] = strconv.Itoa(rec.SameBankCount)
		case domain.ColSameAddressCount:
			row[i] = strconv.Itoa(rec.SameAddressCount)
		case domain.ColAnomaly:
			row[i] = strconv.Itoa(rec.Anomaly)
		case domain.ColRiskScore:
			row[i] = strconv.FormatFloat(rec.RiskScore, 'f', -1, 64)
		}
	}
	return row
}
