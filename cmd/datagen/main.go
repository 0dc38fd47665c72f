// Kestrel - fraud scoring for benefit disbursement data.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command datagen writes a synthetic beneficiary dataset with planted
// fraud signal: clusters of records paying into one bank account,
// near-duplicate names and a handful of inflated amounts, so a scoring
// run over the output has something to find.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/store"
)

var firstNames = []string{
	"Asha", "Ravi", "Meena", "Suresh", "Kavita", "Anil", "Pooja", "Vijay",
	"Sunita", "Rajesh", "Geeta", "Manoj", "Lata", "Deepak", "Rekha", "Arun",
}

var lastNames = []string{
	"Verma", "Kumar", "Joshi", "Patel", "Sharma", "Singh", "Rao", "Gupta",
	"Yadav", "Mishra", "Nair", "Das",
}

var districts = []string{"North", "South", "East", "West", "Central"}

var schemes = []string{"Food Subsidy", "Farmer Aid", "Scholarship"}

var amounts = []int64{2000, 5000, 10000}

func main() {
	n := flag.Int("n", 200, "number of records to generate")
	out := flag.String("out", "./data/raw/beneficiaries.csv", "output CSV path")
	seed := flag.Int64("seed", 7, "random seed")
	sharedClusters := flag.Int("shared", 3, "number of shared-bank-account clusters")
	duplicates := flag.Int("dupes", 5, "number of near-duplicate name pairs")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if *n < 1 {
		slog.Error("record count must be positive", "n", *n)
		os.Exit(1)
	}

	batch := generate(rand.New(rand.NewSource(*seed)), *n, *sharedClusters, *duplicates)

	if err := store.NewCSVStore(*out).Save(batch); err != nil {
		slog.Error("failed to write dataset", "path", *out, "error", err)
		os.Exit(1)
	}

	slog.Info("dataset generated",
		"path", *out,
		"records", batch.Len(),
		"shared_clusters", *sharedClusters,
		"duplicate_pairs", *duplicates,
	)
}

func generate(rng *rand.Rand, n, sharedClusters, duplicates int) domain.Batch {
	records := make([]domain.Record, n)
	for i := range records {
		records[i] = randomRecord(rng, i+1)
	}

	// Plant clusters of 3-5 records paying into one account.
	for c := 0; c < sharedClusters && n >= 2; c++ {
		account := randomAccount(rng)
		size := 3 + rng.Intn(3)
		for k := 0; k < size; k++ {
			records[rng.Intn(n)].BankAccount = account
		}
	}

	// Plant near-duplicate names: the same tokens in swapped order.
	for d := 0; d < duplicates && n >= 2; d++ {
		src := records[rng.Intn(n)]
		dst := &records[rng.Intn(n)]
		first, last := splitName(src.Name)
		dst.Name = last + " " + first
	}

	// A few inflated payouts for the outlier stage.
	for i := 0; i < n/50+1; i++ {
		records[rng.Intn(n)].Amount = 1_000_000 + int64(rng.Intn(500_000))
	}

	return domain.NewBatch(records)
}

func randomRecord(rng *rand.Rand, id int) domain.Record {
	first := firstNames[rng.Intn(len(firstNames))]
	last := lastNames[rng.Intn(len(lastNames))]
	district := districts[rng.Intn(len(districts))]

	return domain.Record{
		BeneficiaryID: id,
		Name:          first + " " + last,
		Phone:         fmt.Sprintf("9%09d", rng.Intn(1_000_000_000)),
		Address:       fmt.Sprintf("H%d, Ward %d, %s", 1+rng.Intn(400), 1+rng.Intn(20), district),
		BankAccount:   randomAccount(rng),
		Scheme:        schemes[rng.Intn(len(schemes))],
		Amount:        amounts[rng.Intn(len(amounts))],
		District:      district,
		Date:          fmt.Sprintf("2025-%02d-%02d", 1+rng.Intn(12), 1+rng.Intn(28)),
	}
}

func randomAccount(rng *rand.Rand) int64 {
	return 10_000_000 + int64(rng.Intn(90_000_000))
}

func splitName(name string) (first, last string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == ' ' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
