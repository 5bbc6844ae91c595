package detector

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Statistical is the rule-based statistical anomaly detector.
//
// Each triggered rule adds a bounded contribution to a running score:
// amount magnitude up to 30, amount z-score up to 25, unusual hour a flat
// 15, velocity up to 20, geo risk up to 20, new device a flat 10. The
// final score is clamped to [0,100].
type Statistical struct {
	highAmountThreshold float64
	zscoreThreshold     float64
	velocityThreshold   int
}

// NewStatistical creates a statistical detector from detection settings.
func NewStatistical(cfg domain.DetectionConfig) *Statistical {
	highAmount := cfg.HighAmountThreshold
	if highAmount <= 0 {
		highAmount = 10000
	}
	zscore := cfg.ZScoreThreshold
	if zscore <= 0 {
		zscore = 3.0
	}
	velocity := cfg.VelocityThreshold
	if velocity <= 0 {
		velocity = 5
	}
	return &Statistical{
		highAmountThreshold: highAmount,
		zscoreThreshold:     zscore,
		velocityThreshold:   velocity,
	}
}

// Name implements Detector.
func (d *Statistical) Name() string { return "statistical" }

// Version implements Detector.
func (d *Statistical) Version() string { return "1.0.0" }

// Detect implements Detector.
func (d *Statistical) Detect(features domain.FeatureVector) (domain.DetectionResult, error) {
	score := 0.0
	var explanations []string

	// Amount magnitude
	amount := features.Float("amount", 0)
	if amount > d.highAmountThreshold {
		score += math.Min(30, amount/d.highAmountThreshold*15)
		explanations = append(explanations, fmt.Sprintf("High transaction amount: $%.2f", amount))
	}

	// Amount deviation
	zscore := features.Float("amount_zscore", 0)
	if math.Abs(zscore) > d.zscoreThreshold {
		score += math.Min(25, math.Abs(zscore)*5)
		explanations = append(explanations, fmt.Sprintf("Amount deviation: %.1fσ from mean", zscore))
	}

	// Time pattern
	if features.Bool("is_unusual_hour", false) {
		score += 15
		explanations = append(explanations, "Transaction at unusual hour")
	}

	// Velocity
	hourlyCount := int(features.Float("hourly_transaction_count", 0))
	if hourlyCount > d.velocityThreshold {
		score += math.Min(20, float64(hourlyCount-d.velocityThreshold)*5)
		explanations = append(explanations, fmt.Sprintf("High transaction velocity: %d/hour", hourlyCount))
	}

	// Geographic risk
	geoRisk := features.Float("geo_risk_score", 0)
	if geoRisk > 50 {
		score += geoRisk * 0.2
		if geoRisk > 80 {
			explanations = append(explanations, "High-risk geographic location")
		}
	}

	// Device risk
	if features.Bool("is_new_device", false) {
		score += 10
		explanations = append(explanations, "New device fingerprint")
	}

	// Confidence steps by 1/3 per tracked signal present, capped at 1.
	dataPoints := 0
	for _, name := range []string{"amount", "amount_zscore", "hourly_transaction_count", "geo_risk_score"} {
		if features.Has(name) {
			dataPoints++
		}
	}
	confidence := clampConfidence(float64(dataPoints) / 3)

	return domain.DetectionResult{
		Score:        clampScore(score),
		Confidence:   confidence,
		Explanations: explanations,
		Metadata: map[string]any{
			"detector": d.Name(),
			"version":  d.Version(),
		},
	}, nil
}
