// Package detector provides the scoring components of the detection
// pipeline. Each detector independently maps a feature vector to a risk
// score, a confidence and a set of explanations.
package detector

import (
	"github.com/opensource-finance/harrier/internal/domain"
)

// Detector is one independent scoring component.
//
// Implementations must be pure and stateless across calls so the engine
// can invoke them concurrently without synchronization, and must clamp
// score to [0,100] and confidence to [0,1] before returning. Violating the
// range is a contract bug, not tolerable output.
type Detector interface {
	// Name is the stable identifier used as the aggregation key.
	Name() string

	// Version identifies the detector implementation.
	Version() string

	// Detect analyzes a feature vector and produces a detection result.
	Detect(features domain.FeatureVector) (domain.DetectionResult, error)
}

// clampScore clamps a risk score to [0,100].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// clampConfidence clamps a confidence to [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// NeutralResult is the substitute used when a detector fails or times out.
// It carries a neutral score with zero confidence so aggregation ignores it.
func NeutralResult() domain.DetectionResult {
	return domain.DetectionResult{
		Score:        50.0,
		Confidence:   0.0,
		Explanations: []string{"Detector unavailable"},
	}
}
