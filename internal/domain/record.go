// Package domain defines the core interfaces and types for Kestrel.
package domain

// Anomaly flag values, as persisted in the anomaly column.
const (
	// AnomalyOutlier marks a record flagged by the outlier scorer.
	AnomalyOutlier = -1

	// AnomalyNormal marks a record the outlier scorer considered normal.
	AnomalyNormal = 1

	// AnomalyUnscored is the zero value for records the scorer has not seen.
	// Callers must treat it as "not yet scored", never as "verified normal".
	AnomalyUnscored = 0
)

// Record represents a single benefit-disbursement record together with
// the columns derived by the scoring pipeline.
type Record struct {
	// Raw columns, immutable once ingested.
	BeneficiaryID int    `json:"beneficiary_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	BankAccount   int64  `json:"bank_account"`
	Scheme        string `json:"scheme"`
	Amount        int64  `json:"amount"`
	District      string `json:"district"`
	Date          string `json:"date"`

	// Derived columns, recomputed from scratch on every batch run.
	SameBankCount    int     `json:"same_bank_count,omitempty"`
	SameAddressCount int     `json:"same_address_count,omitempty"`
	Anomaly          int     `json:"anomaly,omitempty"`
	RiskScore        float64 `json:"risk_score"`
}

// DuplicatePair is an unordered pair of records whose names matched above
// the similarity threshold. IDA < IDB always holds.
type DuplicatePair struct {
	IDA        int `json:"id_a"`
	IDB        int `json:"id_b"`
	Similarity int `json:"similarity"`
}

// Column names as they appear in persisted tabular output. Stages check
// these against Batch.Columns before computing, matching the schema checks
// the pipeline performs on loaded data.
const (
	ColBeneficiaryID    = "beneficiary_id"
	ColName             = "name"
	ColPhone            = "phone"
	ColAddress          = "address"
	ColBankAccount      = "bank_account"
	ColScheme           = "scheme"
	ColAmount           = "amount"
	ColDistrict         = "district"
	ColDate             = "date"
	ColSameBankCount    = "same_bank_count"
	ColSameAddressCount = "same_address_count"
	ColAnomaly          = "anomaly"
	ColRiskScore        = "risk_score"
)

// RawColumns lists the columns every ingested dataset must carry.
func RawColumns() []string {
	return []string{
		ColBeneficiaryID, ColName, ColPhone, ColAddress,
		ColBankAccount, ColScheme, ColAmount, ColDistrict, ColDate,
	}
}

// ColumnSet tracks which columns are present in a batch.
type ColumnSet map[string]struct{}

// NewColumnSet builds a set from column names.
func NewColumnSet(cols ...string) ColumnSet {
	s := make(ColumnSet, len(cols))
	for _, c := range cols {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether every named column is present.
func (s ColumnSet) Has(cols ...string) bool {
	for _, c := range cols {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the named columns absent from the set.
func (s ColumnSet) Missing(cols ...string) []string {
	var missing []string
	for _, c := range cols {
		if _, ok := s[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// Add inserts columns into the set.
func (s ColumnSet) Add(cols ...string) {
	for _, c := range cols {
		s[c] = struct{}{}
	}
}

// Clone returns an independent copy of the set.
func (s ColumnSet) Clone() ColumnSet {
	out := make(ColumnSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Batch is the unit of work for a pipeline run: the full record set plus
// the columns known to be populated. Stages never mutate the records of an
// incoming batch; they return a new batch with additional columns.
type Batch struct {
	Records []Record
	Columns ColumnSet
}

// NewBatch wraps records that carry exactly the raw columns.
func NewBatch(records []Record) Batch {
	return Batch{
		Records: records,
		Columns: NewColumnSet(RawColumns()...),
	}
}

// Clone deep-copies the batch so a stage can attach columns without
// mutating its input.
func (b Batch) Clone() Batch {
	records := make([]Record, len(b.Records))
	copy(records, b.Records)
	return Batch{Records: records, Columns: b.Columns.Clone()}
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}
