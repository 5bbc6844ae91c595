package detector

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Behavioral compares a transaction against the entity's own history:
// spending deviation, destination/channel novelty, time and frequency
// pattern changes, geographic novelty and account age.
type Behavioral struct{}

// NewBehavioral creates a behavioral detector.
func NewBehavioral() *Behavioral {
	return &Behavioral{}
}

// Name implements Detector.
func (d *Behavioral) Name() string { return "behavioral" }

// Version implements Detector.
func (d *Behavioral) Version() string { return "1.0.0" }

// Detect implements Detector.
func (d *Behavioral) Detect(features domain.FeatureVector) (domain.DetectionResult, error) {
	score := 0.0
	var explanations []string

	// Spending pattern deviation, capped at 25 above a 200% threshold.
	pctDeviation := features.Float("amount_pct_from_avg", 0)
	if pctDeviation > 200 {
		score += math.Min(25, (pctDeviation-200)/20)
		explanations = append(explanations, fmt.Sprintf("Spending %.0f%% above typical", pctDeviation))
	}

	if features.Bool("is_new_destination", false) {
		score += 15
		explanations = append(explanations, "First-time transaction destination")
	}

	if features.Bool("is_new_channel", false) {
		score += 10
		explanations = append(explanations, "New transaction channel used")
	}

	timePattern := features.Float("time_pattern_deviation", 0)
	if timePattern > 50 {
		score += timePattern * 0.2
		explanations = append(explanations, "Unusual time pattern for this entity")
	}

	// Frequency deviation, capped at 20. High frequency and dormant
	// reactivation are explained differently.
	freqZ := features.Float("frequency_zscore", 0)
	if math.Abs(freqZ) > 2 {
		score += math.Min(20, math.Abs(freqZ)*5)
		if freqZ > 0 {
			explanations = append(explanations, fmt.Sprintf("Transaction frequency %.1fx higher than usual", math.Abs(freqZ)))
		} else {
			explanations = append(explanations, "Activity after dormant period")
		}
	}

	// Geographic novelty, proportional to distance beyond 500km, capped 25.
	distance := features.Float("location_distance_km", 0)
	if features.Bool("is_new_geo_location", false) && distance > 500 {
		score += math.Min(25, distance/100)
		explanations = append(explanations, fmt.Sprintf("Transaction from new location (%.0fkm away)", distance))
	}

	// Accounts younger than 30 days are higher risk.
	accountAge := features.Float("account_age_days", 365)
	if accountAge < 30 {
		score += 10
		explanations = append(explanations, "New account (less than 30 days old)")
	}

	hasHistory := features.Bool("has_historical_data", false)
	confidence := 0.5
	if hasHistory {
		confidence = 0.9
	}

	return domain.DetectionResult{
		Score:        clampScore(score),
		Confidence:   confidence,
		Explanations: explanations,
		Metadata: map[string]any{
			"detector":    d.Name(),
			"version":     d.Version(),
			"has_history": hasHistory,
		},
	}, nil
}
