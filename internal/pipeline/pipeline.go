// Package pipeline orchestrates a full scoring run: load, feature
// aggregation, outlier scoring, duplicate matching, risk aggregation,
// persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/dedupe"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/outlier"
	"github.com/opensource-finance/kestrel/internal/risk"
)

// highRiskThreshold is the informational cutoff used for run summaries
// and alert events. It does not affect stored scores.
const highRiskThreshold = 10.0

var tracer = otel.Tracer("kestrel-pipeline")

// StageSummary reports the outcome of one pipeline stage.
type StageSummary struct {
	Name     string             `json:"name"`
	Status   domain.StageStatus `json:"status"`
	Reason   string             `json:"reason,omitempty"`
	Duration time.Duration      `json:"durationNs"`
}

// Summary is the full result of a pipeline run, logged and published on
// the event bus when the run completes.
type Summary struct {
	RunID      string         `json:"runId"`
	Status     string         `json:"status"`
	Records    int            `json:"records"`
	Outliers   int            `json:"outliers"`
	HighRisk   int            `json:"highRisk"`
	Duplicates int            `json:"duplicates"`
	Stages     []StageSummary `json:"stages"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// Pipeline wires the scoring stages to a record store and a score
// repository. Stages never write; persistence happens only after every
// stage has finished, so a failed run leaves the previous run's tables
// untouched.
type Pipeline struct {
	store      domain.RecordStore
	repo       domain.ScoreRepository
	bus        domain.EventBus
	aggregator *features.Aggregator
	scorer     *outlier.Scorer
	matcher    *dedupe.Matcher
	risk       *risk.Aggregator

	// Guards summary mutation from the concurrent dedupe and scoring
	// goroutines.
	mu sync.Mutex
}

// New builds a pipeline from scoring configuration. The bus may be nil;
// events are then skipped.
func New(cfg domain.ScoringConfig, store domain.RecordStore, repo domain.ScoreRepository, bus domain.EventBus) (*Pipeline, error) {
	riskAgg, err := risk.NewAggregator(cfg.Weights, cfg.RiskExpression)
	if err != nil {
		return nil, fmt.Errorf("failed to build risk aggregator: %w", err)
	}

	return &Pipeline{
		store:      store,
		repo:       repo,
		bus:        bus,
		aggregator: features.NewAggregator(),
		scorer:     outlier.NewScorer(cfg.Contamination, cfg.Seed),
		matcher:    dedupe.NewMatcher(cfg.DuplicateThreshold, cfg.MatcherWorkers),
		risk:       riskAgg,
	}, nil
}

// Run executes one full scoring run and returns its summary. A non-nil
// error means nothing was persisted and the previous run's output is
// still being served.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.New().String(),
		Status:    domain.RunSucceeded,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("run.id", summary.RunID)))
	defer span.End()

	slog.Info("pipeline run started", "run_id", summary.RunID)

	batch, err := p.loadStage(ctx, summary)
	if err != nil {
		return p.fail(ctx, summary, err)
	}
	summary.Records = batch.Len()

	augmented, err := p.featureStage(ctx, summary, batch)
	if err != nil {
		return p.fail(ctx, summary, err)
	}

	// Duplicate matching has no data dependency on scoring; run it
	// alongside the outlier and risk stages.
	var (
		pairs  []domain.DuplicatePair
		scored domain.Batch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pairs, err = p.matchStage(gctx, summary, augmented)
		return err
	})
	g.Go(func() error {
		var err error
		scored, err = p.scoreStages(gctx, summary, augmented)
		return err
	})
	if err := g.Wait(); err != nil {
		return p.fail(ctx, summary, err)
	}

	for i := range scored.Records {
		if scored.Records[i].Anomaly == domain.AnomalyOutlier {
			summary.Outliers++
		}
		if scored.Records[i].RiskScore > highRiskThreshold {
			summary.HighRisk++
		}
	}
	summary.Duplicates = len(pairs)

	if err := p.persistStage(ctx, summary, scored, pairs); err != nil {
		return p.fail(ctx, summary, err)
	}

	summary.FinishedAt = time.Now().UTC()
	p.recordRun(ctx, summary)
	p.publishCompleted(ctx, summary)

	slog.Info("pipeline run finished",
		"run_id", summary.RunID,
		"status", summary.Status,
		"records", summary.Records,
		"outliers", summary.Outliers,
		"high_risk", summary.HighRisk,
		"duplicates", summary.Duplicates,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)

	return summary, nil
}

func (p *Pipeline) loadStage(ctx context.Context, summary *Summary) (domain.Batch, error) {
	_, span := tracer.Start(ctx, "pipeline.load")
	defer span.End()

	start := time.Now()
	batch, err := p.store.Load()
	if err != nil {
		p.addStage(summary, "load", domain.StageFailed, err.Error(), start)
		return domain.Batch{}, fmt.Errorf("load stage: %w", err)
	}

	p.addStage(summary, "load", domain.StageOK, "", start)
	return batch, nil
}

func (p *Pipeline) featureStage(ctx context.Context, summary *Summary, batch domain.Batch) (domain.Batch, error) {
	_, span := tracer.Start(ctx, "pipeline.features")
	defer span.End()

	start := time.Now()
	out, err := p.aggregator.Augment(batch)
	if err != nil {
		p.addStage(summary, "features", domain.StageFailed, err.Error(), start)
		return domain.Batch{}, fmt.Errorf("feature stage: %w", err)
	}

	p.addStage(summary, "features", domain.StageOK, "", start)
	return out, nil
}

func (p *Pipeline) matchStage(ctx context.Context, summary *Summary, batch domain.Batch) ([]domain.DuplicatePair, error) {
	_, span := tracer.Start(ctx, "pipeline.dedupe")
	defer span.End()

	start := time.Now()
	pairs, err := p.matcher.FindPairs(ctx, batch)
	if err != nil {
		p.addStage(summary, "dedupe", domain.StageFailed, err.Error(), start)
		return nil, fmt.Errorf("dedupe stage: %w", err)
	}

	p.addStage(summary, "dedupe", domain.StageOK, "", start)
	return pairs, nil
}

// scoreStages runs outlier scoring then risk aggregation. Either stage
// may degrade; a degraded stage passes its input through and marks the
// whole run degraded instead of aborting it.
func (p *Pipeline) scoreStages(ctx context.Context, summary *Summary, batch domain.Batch) (domain.Batch, error) {
	_, span := tracer.Start(ctx, "pipeline.outlier")
	start := time.Now()
	outlierResult := p.scorer.Score(batch)
	span.End()
	p.addStage(summary, "outlier", outlierResult.Status, outlierResult.Reason, start)

	_, span = tracer.Start(ctx, "pipeline.risk")
	start = time.Now()
	riskResult := p.risk.Aggregate(outlierResult.Batch)
	span.End()
	p.addStage(summary, "risk", riskResult.Status, riskResult.Reason, start)

	if outlierResult.Status == domain.StageDegraded || riskResult.Status == domain.StageDegraded {
		summary.Status = domain.RunDegraded
	}
	return riskResult.Batch, nil
}

func (p *Pipeline) persistStage(ctx context.Context, summary *Summary, batch domain.Batch, pairs []domain.DuplicatePair) error {
	_, span := tracer.Start(ctx, "pipeline.persist")
	defer span.End()

	start := time.Now()
	if err := p.repo.ReplaceScores(ctx, batch.Records); err != nil {
		p.addStage(summary, "persist", domain.StageFailed, err.Error(), start)
		return fmt.Errorf("persist stage: %w", err)
	}
	if err := p.repo.ReplaceDuplicatePairs(ctx, pairs); err != nil {
		p.addStage(summary, "persist", domain.StageFailed, err.Error(), start)
		return fmt.Errorf("persist stage: %w", err)
	}

	p.addStage(summary, "persist", domain.StageOK, "", start)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, summary *Summary, err error) (*Summary, error) {
	summary.Status = domain.RunFailed
	summary.FinishedAt = time.Now().UTC()

	slog.Error("pipeline run failed",
		"run_id", summary.RunID,
		"error", err,
	)

	p.recordRun(ctx, summary)
	if p.bus != nil {
		payload, mErr := json.Marshal(summary)
		if mErr == nil {
			_ = p.bus.Publish(ctx, domain.TopicRunFailed, payload)
		}
	}
	return summary, err
}

func (p *Pipeline) recordRun(ctx context.Context, summary *Summary) {
	run := &domain.PipelineRun{
		ID:             summary.RunID,
		StartedAt:      summary.StartedAt,
		FinishedAt:     summary.FinishedAt,
		Status:         summary.Status,
		RecordCount:    summary.Records,
		OutlierCount:   summary.Outliers,
		HighRiskCount:  summary.HighRisk,
		DuplicateCount: summary.Duplicates,
		Duration:       summary.FinishedAt.Sub(summary.StartedAt),
	}
	if err := p.repo.RecordRun(ctx, run); err != nil {
		slog.Error("failed to record pipeline run", "run_id", run.ID, "error", err)
	}
}

func (p *Pipeline) publishCompleted(ctx context.Context, summary *Summary) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		slog.Error("failed to marshal run summary", "run_id", summary.RunID, "error", err)
		return
	}

	if err := p.bus.Publish(ctx, domain.TopicRunCompleted, payload); err != nil {
		slog.Error("failed to publish run completion", "run_id", summary.RunID, "error", err)
	}
	if summary.HighRisk > 0 {
		if err := p.bus.Publish(ctx, domain.TopicHighRiskAlert, payload); err != nil {
			slog.Error("failed to publish high risk alert", "run_id", summary.RunID, "error", err)
		}
	}
}

func (p *Pipeline) addStage(summary *Summary, name string, status domain.StageStatus, reason string, start time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	summary.Stages = append(summary.Stages, StageSummary{
		Name:     name,
		Status:   status,
		Reason:   reason,
		Duration: time.Since(start),
	})
}
