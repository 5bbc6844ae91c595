// Package engine orchestrates the detection pipeline: feature
// extraction, detector fan-out, score aggregation, business-rule and
// policy adjustment, severity classification and the alert decision.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/detector"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Version identifies the pipeline implementation in detection output.
const Version = "1.0.0"

// DetectionEngine runs the full pipeline for one transaction at a time.
// It is stateless across invocations and safe for concurrent use.
type DetectionEngine struct {
	cfg       domain.DetectionConfig
	engineer  *features.Engineer
	detectors []detector.Detector
	scorer    *scoring.RiskScorer
	policies  *policy.Engine
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// Option configures a DetectionEngine.
type Option func(*DetectionEngine)

// WithPolicies attaches a policy override engine. Without one, the
// policy stage is skipped.
func WithPolicies(p *policy.Engine) Option {
	return func(e *DetectionEngine) { e.policies = p }
}

// WithRecorder attaches a metrics sink. The default discards.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *DetectionEngine) { e.recorder = r }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *DetectionEngine) { e.logger = l }
}

// NewDetectionEngine creates the pipeline. Detector order is
// registration order; explanations in output preserve it.
func NewDetectionEngine(cfg domain.DetectionConfig, engineer *features.Engineer, detectors []detector.Detector, opts ...Option) (*DetectionEngine, error) {
	if engineer == nil {
		return nil, fmt.Errorf("feature engineer is required")
	}
	if len(detectors) == 0 {
		return nil, fmt.Errorf("at least one detector is required")
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = 50.0
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 8
	}

	e := &DetectionEngine{
		cfg:       cfg,
		engineer:  engineer,
		detectors: detectors,
		recorder:  metrics.Noop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.scorer = scoring.NewRiskScorer(cfg.DetectorWeights, e.logger)

	return e, nil
}

// Process runs detection for one transaction. Feature extraction
// failure is fatal for the transaction; a single detector failure is
// substituted with a neutral result and never aborts the pipeline.
func (e *DetectionEngine) Process(ctx context.Context, tx *domain.TransactionInput) (*domain.DetectionOutput, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction is required")
	}

	start := time.Now()

	// Extract
	featureVector, err := e.engineer.Extract(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("feature extraction failed for %s: %w", tx.ID, err)
	}
	extractMs := float64(time.Since(start).Microseconds()) / 1000

	// Detect
	detectStart := time.Now()
	results := e.runDetectors(ctx, tx.ID, featureVector)
	detectMs := float64(time.Since(detectStart).Microseconds()) / 1000

	// Aggregate
	detectorScores := make(map[string]float64, len(e.detectors))
	confidences := make(map[string]float64, len(e.detectors))
	var explanations []string
	for i, d := range e.detectors {
		detectorScores[d.Name()] = results[i].Score
		confidences[d.Name()] = results[i].Confidence
		explanations = append(explanations, results[i].Explanations...)
	}
	scored := e.scorer.Score(detectorScores, confidences)
	composite := scored.CompositeScore

	// Business rules
	if ruleCtx := domain.RuleContextFromMetadata(tx.Metadata); ruleCtx != (domain.RuleContext{}) {
		composite = e.scorer.ApplyBusinessRules(composite, ruleCtx)
	}

	// Policy overrides
	if e.policies != nil {
		policyResults := e.policies.EvaluateAll(ctx, &policy.EvaluateInput{
			TenantID: tx.TenantID,
			Score:    composite,
			Features: featureVector,
			Tx:       tx,
		})
		for _, pr := range policyResults {
			if pr.Err != "" {
				e.logger.Warn("policy evaluation failed",
					"policy_id", pr.PolicyID,
					"tx_id", tx.ID,
					"error", pr.Err)
				continue
			}
			if pr.Matched && pr.Reason != "" {
				explanations = append(explanations, pr.Reason)
			}
		}
		composite = scoring.Clamp(composite+policy.TotalAdjustment(policyResults), 0, 100)
	}

	composite = math.Round(composite*100) / 100

	// Classify and decide
	severity := domain.SeverityForScore(composite)
	shouldAlert := composite >= e.cfg.AlertThreshold

	e.recorder.RecordScore(composite)
	if shouldAlert {
		e.recorder.RecordAlert(string(severity))
	}

	totalMs := float64(time.Since(start).Microseconds()) / 1000

	output := &domain.DetectionOutput{
		ID:             uuid.New().String(),
		TransactionID:  tx.ID,
		TenantID:       tx.TenantID,
		RiskScore:      composite,
		Severity:       severity,
		ShouldAlert:    shouldAlert,
		DetectorScores: detectorScores,
		Features:       featureVector,
		Explanations:   explanations,
		ProcessedAt:    time.Now().UTC(),
		Metadata: domain.DetectionMetadata{
			ExtractMs:     extractMs,
			DetectMs:      detectMs,
			TotalMs:       totalMs,
			DetectorsRun:  len(e.detectors),
			EngineVersion: Version,
		},
	}

	e.logger.Debug("detection complete",
		"tx_id", tx.ID,
		"score", composite,
		"severity", severity,
		"should_alert", shouldAlert,
		"total_ms", totalMs)

	return output, nil
}

// runDetectors invokes every detector concurrently. Results are indexed
// by registration order so aggregation and explanation order stay
// deterministic regardless of completion order.
func (e *DetectionEngine) runDetectors(ctx context.Context, txID string, featureVector domain.FeatureVector) []domain.DetectionResult {
	results := make([]domain.DetectionResult, len(e.detectors))
	var wg sync.WaitGroup

	for i, d := range e.detectors {
		wg.Add(1)
		go func(idx int, d detector.Detector) {
			defer wg.Done()
			results[idx] = e.runDetector(ctx, txID, d, featureVector)
		}(i, d)
	}

	wg.Wait()
	return results
}

// runDetector isolates one detector invocation: errors, panics and
// timeouts all substitute the neutral result.
func (e *DetectionEngine) runDetector(ctx context.Context, txID string, d detector.Detector, featureVector domain.FeatureVector) domain.DetectionResult {
	type outcome struct {
		result domain.DetectionResult
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("detector panic: %v", r)}
			}
		}()
		result, err := d.Detect(featureVector)
		done <- outcome{result: result, err: err}
	}()

	var timeout <-chan time.Time
	if e.cfg.DetectorTimeout > 0 {
		timer := time.NewTimer(e.cfg.DetectorTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-done:
		if out.err != nil {
			e.logger.Error("detector failed, substituting neutral result",
				"detector", d.Name(),
				"tx_id", txID,
				"error", out.err)
			e.recorder.RecordDetectorFailure(d.Name())
			return detector.NeutralResult()
		}
		return out.result
	case <-timeout:
		e.logger.Error("detector timed out, substituting neutral result",
			"detector", d.Name(),
			"tx_id", txID,
			"timeout", e.cfg.DetectorTimeout)
		e.recorder.RecordDetectorFailure(d.Name())
		return detector.NeutralResult()
	case <-ctx.Done():
		e.logger.Error("detection cancelled, substituting neutral result",
			"detector", d.Name(),
			"tx_id", txID,
			"error", ctx.Err())
		e.recorder.RecordDetectorFailure(d.Name())
		return detector.NeutralResult()
	}
}

// BatchItem is one transaction's outcome within a batch.
type BatchItem struct {
	Output *domain.DetectionOutput
	Err    error
}

// ProcessBatch runs detection over many transactions with a bounded
// worker pool. Results match input order; one transaction's failure
// never affects its siblings.
func (e *DetectionEngine) ProcessBatch(ctx context.Context, txs []*domain.TransactionInput) []BatchItem {
	results := make([]BatchItem, len(txs))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.cfg.BatchWorkers)

	for i, tx := range txs {
		wg.Add(1)
		go func(idx int, tx *domain.TransactionInput) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			output, err := e.Process(ctx, tx)
			results[idx] = BatchItem{Output: output, Err: err}
		}(i, tx)
	}

	wg.Wait()
	return results
}

// Detectors returns the registered detector names in order.
func (e *DetectionEngine) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// AlertThreshold returns the configured alert cutoff.
func (e *DetectionEngine) AlertThreshold() float64 {
	return e.cfg.AlertThreshold
}
