//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel query
// service, run against a live server over HTTP.
//
// Setup:
//
//	go run ./cmd/datagen -n 200 -out ./data/raw/beneficiaries.csv
//	go run ./cmd/pipeline -csv ./data/raw/beneficiaries.csv
//	go run ./cmd/kestrel
//
// Then: go test -tags=integration -v ./tests/integration/...
//
// The server address defaults to http://localhost:8080 and can be
// overridden with KESTREL_TEST_URL.
package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("KESTREL_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

var client = &http.Client{Timeout: 10 * time.Second}

func get(t *testing.T, path string) (int, []byte) {
	t.Helper()

	resp, err := client.Get(baseURL() + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func requireServer(t *testing.T) {
	t.Helper()

	resp, err := client.Get(baseURL() + "/health")
	if err != nil {
		t.Skipf("kestrel not reachable at %s: %v", baseURL(), err)
	}
	resp.Body.Close()
}

type record struct {
	BeneficiaryID int     `json:"beneficiary_id"`
	Anomaly       int     `json:"anomaly"`
	RiskScore     float64 `json:"risk_score"`
}

func TestHealthReportsVersion(t *testing.T) {
	requireServer(t)

	status, body := get(t, "/health")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
	if health.Version == "" {
		t.Error("version missing")
	}
}

func TestAnomaliesAreFlaggedOutliers(t *testing.T) {
	requireServer(t)

	status, body := get(t, "/anomalies?limit=50")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var resp struct {
		Anomalies []record `json:"anomalies"`
		Count     int      `json:"count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != len(resp.Anomalies) {
		t.Errorf("count = %d but %d records", resp.Count, len(resp.Anomalies))
	}
	for _, r := range resp.Anomalies {
		if r.Anomaly != -1 {
			t.Errorf("record %d: anomaly = %d, want -1", r.BeneficiaryID, r.Anomaly)
		}
	}
}

func TestRiskListingIsSortedDescending(t *testing.T) {
	requireServer(t)

	status, body := get(t, "/risk?threshold=0&limit=100")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var resp struct {
		Records []record `json:"records"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i := 1; i < len(resp.Records); i++ {
		if resp.Records[i].RiskScore > resp.Records[i-1].RiskScore {
			t.Fatalf("records out of order at index %d", i)
		}
	}
}

func TestPointLookupMatchesListing(t *testing.T) {
	requireServer(t)

	status, body := get(t, "/risk?threshold=0&limit=1")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var listing struct {
		Records []record `json:"records"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listing.Records) == 0 {
		t.Skip("no scored records; run the pipeline first")
	}

	top := listing.Records[0]
	status, body = get(t, fmt.Sprintf("/beneficiaries/%d", top.BeneficiaryID))
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var single record
	if err := json.Unmarshal(body, &single); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if single.RiskScore != top.RiskScore {
		t.Errorf("point lookup risk %v != listing risk %v", single.RiskScore, top.RiskScore)
	}
}

func TestParameterValidation(t *testing.T) {
	requireServer(t)

	for _, path := range []string{
		"/anomalies?limit=0",
		"/anomalies?limit=1001",
		"/anomalies?min_risk=-3",
		"/risk?threshold=abc",
		"/beneficiaries/not-a-number",
	} {
		status, _ := get(t, path)
		if status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, status)
		}
	}
}

func TestUnknownBeneficiaryIs404(t *testing.T) {
	requireServer(t)

	status, _ := get(t, "/beneficiaries/999999999")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}
