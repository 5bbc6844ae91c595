package scoring

import (
	"log/slog"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Five-tier risk levels reported alongside the composite score. These
// are finer-grained than the four-tier alert severity used by the
// engine; both scales are intentional.
const (
	RiskCritical = "CRITICAL"
	RiskHigh     = "HIGH"
	RiskMedium   = "MEDIUM"
	RiskLow      = "LOW"
	RiskMinimal  = "MINIMAL"
)

// DefaultWeights are the assigned weights per detector name.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"statistical": 0.25,
		"behavioral":  0.35,
		"ml":          0.40,
	}
}

// RiskScorer combines detector outputs into a single interpretable
// risk score using confidence-weighted averaging.
type RiskScorer struct {
	weights map[string]float64
	logger  *slog.Logger
}

// NewRiskScorer creates a scorer with the given weight map, or the
// defaults when nil. Weights that do not sum to 1.0 are renormalized
// with a warning.
func NewRiskScorer(weights map[string]float64, logger *slog.Logger) *RiskScorer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(weights) == 0 {
		weights = DefaultWeights()
	} else {
		weights = normalizeWeights(weights, logger)
	}
	return &RiskScorer{weights: weights, logger: logger}
}

func normalizeWeights(weights map[string]float64, logger *slog.Logger) map[string]float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if math.Abs(total-1.0) <= 0.01 {
		return weights
	}

	logger.Warn("detector weights do not sum to 1.0, renormalizing", "total", total)
	normalized := make(map[string]float64, len(weights))
	if total == 0 {
		for k := range weights {
			normalized[k] = 0
		}
		return normalized
	}
	for k, w := range weights {
		normalized[k] = w / total
	}
	return normalized
}

// Weights returns the effective (renormalized) weight map.
func (s *RiskScorer) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// Score calculates the composite risk score from detector outputs.
//
// Each detector's effective weight is its assigned weight times its
// confidence, so low-confidence results contribute less. A detector
// absent from the confidence map is treated as fully confident. When
// the total effective weight is zero the composite defaults to the
// neutral 50, never an error.
func (s *RiskScorer) Score(detectorScores map[string]float64, confidences map[string]float64) domain.ScoringResult {
	weightedSum := 0.0
	totalWeight := 0.0
	breakdown := make(map[string]domain.ScoreContribution, len(detectorScores))

	for name, score := range detectorScores {
		weight := s.weights[name]
		confidence := 1.0
		if c, ok := confidences[name]; ok {
			confidence = c
		}

		effectiveWeight := weight * confidence
		contribution := score * effectiveWeight
		weightedSum += contribution
		totalWeight += effectiveWeight

		breakdown[name] = domain.ScoreContribution{
			RawScore:     score,
			Weight:       weight,
			Confidence:   confidence,
			Contribution: contribution,
		}
	}

	composite := 50.0
	if totalWeight > 0 {
		composite = weightedSum / totalWeight
	}

	return domain.ScoringResult{
		CompositeScore:  math.Round(composite*100) / 100,
		ComponentScores: detectorScores,
		Breakdown:       breakdown,
		Confidence:      math.Round(s.overallConfidence(confidences)*100) / 100,
	}
}

// overallConfidence is the weight-averaged confidence across the
// contributing detectors. Zero-weight detectors do not affect it; with
// no usable confidences it defaults to full confidence.
func (s *RiskScorer) overallConfidence(confidences map[string]float64) float64 {
	if len(confidences) == 0 {
		return 1.0
	}

	weightedConf := 0.0
	weightTotal := 0.0
	for name, conf := range confidences {
		w := s.weights[name]
		weightedConf += conf * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 1.0
	}
	return weightedConf / weightTotal
}

// ApplyBusinessRules adjusts a composite score per account context.
// The rules compose in a fixed order: VIP discount, known-pattern
// floor, verified-merchant discount, high-risk-country surcharge; the
// result is clamped to [0,100].
func (s *RiskScorer) ApplyBusinessRules(baseScore float64, ctx domain.RuleContext) float64 {
	adjusted := baseScore

	if ctx.VIPCustomer {
		adjusted *= 0.9
	}
	if ctx.MatchesKnownPattern {
		adjusted = math.Max(adjusted, 80.0)
	}
	if ctx.VerifiedMerchant {
		adjusted *= 0.85
	}
	if ctx.HighRiskCountry {
		adjusted = math.Min(100, adjusted+15)
	}

	return Clamp(adjusted, 0, 100)
}

// RiskLevel converts a numeric score to its five-tier risk level.
func RiskLevel(score float64) string {
	switch {
	case score >= 90:
		return RiskCritical
	case score >= 70:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	case score >= 30:
		return RiskLow
	default:
		return RiskMinimal
	}
}
