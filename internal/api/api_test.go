package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestServer(t *testing.T, records []domain.Record, pairs []domain.DuplicatePair) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	if err := repo.ReplaceScores(ctx, records); err != nil {
		t.Fatalf("failed to seed scores: %v", err)
	}
	if err := repo.ReplaceDuplicatePairs(ctx, pairs); err != nil {
		t.Fatalf("failed to seed duplicate pairs: %v", err)
	}

	return NewServer(domain.ServerConfig{}, repo, cache.NewLRUCache(100), "test")
}

// testRecords builds a dataset where ids 1..7 carry risk above 10
// (descending from 25) and ids 8..10 sit below the default threshold.
func testRecords() []domain.Record {
	var records []domain.Record
	for i := 1; i <= 10; i++ {
		r := domain.Record{
			BeneficiaryID: i,
			Name:          fmt.Sprintf("Beneficiary %d", i),
			Phone:         "9000000000",
			Address:       fmt.Sprintf("House %d, Ward 4", i),
			BankAccount:   int64(40000000 + i),
			Scheme:        "Food Subsidy",
			Amount:        5000,
			District:      "North",
			Date:          "2025-03-01",
			Anomaly:       domain.AnomalyNormal,
		}
		if i <= 7 {
			r.RiskScore = float64(25 - 2*i) // 23, 21, ... 11
		} else {
			r.RiskScore = 4
		}
		if i%3 == 0 {
			r.Anomaly = domain.AnomalyOutlier
		}
		records = append(records, r)
	}
	return records
}

func doGet(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body map[string]json.RawMessage
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec, body := doGet(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var status string
	_ = json.Unmarshal(body["status"], &status)
	if status != "healthy" {
		t.Errorf("status = %q, want healthy", status)
	}
}

func TestReady(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec, _ := doGet(t, srv, "/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestListAnomalies(t *testing.T) {
	srv := newTestServer(t, testRecords(), nil)

	t.Run("ReturnsOnlyFlaggedRecords", func(t *testing.T) {
		rec, body := doGet(t, srv, "/anomalies")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var anomalies []domain.Record
		if err := json.Unmarshal(body["anomalies"], &anomalies); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		// Ids 3, 6, 9 are flagged in the seed data.
		if len(anomalies) != 3 {
			t.Fatalf("got %d anomalies, want 3", len(anomalies))
		}
		for _, r := range anomalies {
			if r.Anomaly != domain.AnomalyOutlier {
				t.Errorf("record %d has anomaly = %d", r.BeneficiaryID, r.Anomaly)
			}
		}
		// Stored order is preserved.
		if anomalies[0].BeneficiaryID != 3 || anomalies[2].BeneficiaryID != 9 {
			t.Errorf("unexpected order: %d, %d, %d",
				anomalies[0].BeneficiaryID, anomalies[1].BeneficiaryID, anomalies[2].BeneficiaryID)
		}
	})

	t.Run("MinRiskFilters", func(t *testing.T) {
		rec, body := doGet(t, srv, "/anomalies?min_risk=10")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var anomalies []domain.Record
		_ = json.Unmarshal(body["anomalies"], &anomalies)
		// Of the flagged ids, only 3 (risk 19) and 6 (risk 13) clear 10.
		if len(anomalies) != 2 {
			t.Fatalf("got %d anomalies, want 2", len(anomalies))
		}
	})

	t.Run("LimitCaps", func(t *testing.T) {
		rec, body := doGet(t, srv, "/anomalies?limit=1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var anomalies []domain.Record
		_ = json.Unmarshal(body["anomalies"], &anomalies)
		if len(anomalies) != 1 {
			t.Errorf("got %d anomalies, want 1", len(anomalies))
		}
	})

	t.Run("MalformedMinRisk", func(t *testing.T) {
		rec, _ := doGet(t, srv, "/anomalies?min_risk=banana")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("NegativeMinRisk", func(t *testing.T) {
		rec, _ := doGet(t, srv, "/anomalies?min_risk=-1")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("MalformedLimit", func(t *testing.T) {
		for _, q := range []string{"limit=0", "limit=-5", "limit=5000", "limit=abc"} {
			rec, _ := doGet(t, srv, "/anomalies?"+q)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, rec.Code)
			}
		}
	})
}

func TestListHighRisk(t *testing.T) {
	srv := newTestServer(t, testRecords(), nil)

	t.Run("ThresholdAndLimit", func(t *testing.T) {
		// Seven records sit above the default threshold; limit trims to
		// the five highest.
		rec, body := doGet(t, srv, "/risk?threshold=10&limit=5")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var records []domain.Record
		if err := json.Unmarshal(body["records"], &records); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(records) != 5 {
			t.Fatalf("got %d records, want 5", len(records))
		}
		for i := 1; i < len(records); i++ {
			if records[i].RiskScore > records[i-1].RiskScore {
				t.Errorf("records not sorted descending at index %d", i)
			}
		}
		if records[0].BeneficiaryID != 1 {
			t.Errorf("top record = %d, want 1", records[0].BeneficiaryID)
		}
	})

	t.Run("DefaultThresholdIsTen", func(t *testing.T) {
		rec, body := doGet(t, srv, "/risk")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var records []domain.Record
		_ = json.Unmarshal(body["records"], &records)
		if len(records) != 7 {
			t.Errorf("got %d records, want 7", len(records))
		}
	})

	t.Run("EmptyResultIsOK", func(t *testing.T) {
		rec, body := doGet(t, srv, "/risk?threshold=999")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 for empty result", rec.Code)
		}

		var count int
		_ = json.Unmarshal(body["count"], &count)
		if count != 0 {
			t.Errorf("count = %d, want 0", count)
		}
	})

	t.Run("MalformedThreshold", func(t *testing.T) {
		rec, _ := doGet(t, srv, "/risk?threshold=high")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetBeneficiary(t *testing.T) {
	srv := newTestServer(t, testRecords(), nil)

	t.Run("Found", func(t *testing.T) {
		rec, _ := doGet(t, srv, "/beneficiaries/1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var record domain.Record
		if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if record.BeneficiaryID != 1 || record.RiskScore != 23 {
			t.Errorf("got id=%d risk=%v", record.BeneficiaryID, record.RiskScore)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		rec, _ := doGet(t, srv, "/beneficiaries/404404")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("MalformedID", func(t *testing.T) {
		rec, _ := doGet(t, srv, "/beneficiaries/abc")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("SecondLookupServedFromCache", func(t *testing.T) {
		// Prime the cache, then make the same record unreachable in the
		// store; the cached copy must still be served.
		rec, _ := doGet(t, srv, "/beneficiaries/2")
		if rec.Code != http.StatusOK {
			t.Fatalf("prime status = %d", rec.Code)
		}

		if err := srv.Handler().repo.ReplaceScores(context.Background(), nil); err != nil {
			t.Fatalf("ReplaceScores: %v", err)
		}

		rec, _ = doGet(t, srv, "/beneficiaries/2")
		if rec.Code != http.StatusOK {
			t.Errorf("cached lookup status = %d, want 200", rec.Code)
		}
	})
}

func TestListDuplicates(t *testing.T) {
	pairs := []domain.DuplicatePair{
		{IDA: 1, IDB: 4, Similarity: 100},
		{IDA: 2, IDB: 9, Similarity: 92},
		{IDA: 3, IDB: 7, Similarity: 95},
	}
	srv := newTestServer(t, testRecords(), pairs)

	rec, body := doGet(t, srv, "/duplicates")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got []domain.DuplicatePair
	if err := json.Unmarshal(body["pairs"], &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d pairs, want 3", len(got))
	}
	// Ordered by descending similarity.
	if got[0].Similarity != 100 || got[1].Similarity != 95 || got[2].Similarity != 92 {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec, _ := doGet(t, srv, "/health")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request id")
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
