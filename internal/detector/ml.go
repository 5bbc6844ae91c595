package detector

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ML simulates a trained ensemble model. It derives normalized model
// inputs from the feature vector and produces a score from a base value
// plus additive bonuses per threshold crossing, with an optional injected
// noise source standing in for model prediction variance. With no noise
// source configured the detector is fully deterministic.
type ML struct {
	modelLoaded bool
	noise       func() float64
}

// MLOption configures an ML detector.
type MLOption func(*ML)

// WithNoise injects a bounded noise source simulating prediction
// variance. Values outside [-5,5] are clamped before use.
func WithNoise(fn func() float64) MLOption {
	return func(d *ML) { d.noise = fn }
}

// WithoutModel marks the model as unavailable. Every Detect call then
// returns the neutral score with zero confidence instead of failing
// the pipeline.
func WithoutModel() MLOption {
	return func(d *ML) { d.modelLoaded = false }
}

// NewML creates an ML detector. The model is considered loaded unless
// WithoutModel is given.
func NewML(opts ...MLOption) *ML {
	d := &ML{modelLoaded: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Detector.
func (d *ML) Name() string { return "ml" }

// Version implements Detector. The version tracks the model, not the code.
func (d *ML) Version() string { return "3.0.0" }

// Detect implements Detector.
func (d *ML) Detect(features domain.FeatureVector) (domain.DetectionResult, error) {
	if !d.modelLoaded {
		return domain.DetectionResult{
			Score:        50,
			Confidence:   0,
			Explanations: []string{"ML model unavailable"},
		}, nil
	}

	inputs := d.prepareInputs(features)
	score, confidence := d.predict(inputs)
	explanations := d.explain(inputs, score)

	return domain.DetectionResult{
		Score:        score,
		Confidence:   confidence,
		Explanations: explanations,
		Metadata: map[string]any{
			"detector":   d.Name(),
			"version":    d.Version(),
			"model_type": "ensemble",
		},
	}, nil
}

// prepareInputs normalizes raw features into the model's input space.
func (d *ML) prepareInputs(features domain.FeatureVector) map[string]float64 {
	timeRisk := 0.0
	if features.Bool("is_unusual_hour", false) {
		timeRisk = 1
	}
	deviceRisk := 0.0
	if features.Bool("is_new_device", false) {
		deviceRisk = 1
	}
	destinationRisk := 0.0
	if features.Bool("is_new_destination", false) {
		destinationRisk = 1
	}
	accountAgeRisk := 0.0
	if features.Float("account_age_days", 365) < 30 {
		accountAgeRisk = 1
	}

	return map[string]float64{
		"amount_normalized":   features.Float("amount_zscore", 0) / 3,
		"time_risk":           timeRisk,
		"velocity":            math.Min(1, features.Float("hourly_transaction_count", 0)/10),
		"geo_risk":            features.Float("geo_risk_score", 50) / 100,
		"device_risk":         deviceRisk,
		"destination_risk":    destinationRisk,
		"frequency_deviation": math.Abs(features.Float("frequency_zscore", 0)) / 3,
		"account_age_risk":    accountAgeRisk,
	}
}

// predict returns (score, confidence). Base score plus per-threshold
// bonuses, then the optional noise term, clamped to [0,100]. Confidence
// is high at the score extremes, reduced mid-range.
func (d *ML) predict(inputs map[string]float64) (float64, float64) {
	score := 20.0

	if inputs["amount_normalized"] > 0.8 {
		score += 30
	} else if inputs["amount_normalized"] > 0.5 {
		score += 15
	}
	if inputs["velocity"] > 0.7 {
		score += 20
	}
	if inputs["geo_risk"] > 0.7 {
		score += 15
	}
	if inputs["device_risk"] > 0.5 {
		score += 10
	}
	if inputs["destination_risk"] > 0.5 {
		score += 10
	}

	if d.noise != nil {
		score += math.Max(-5, math.Min(5, d.noise()))
	}
	score = clampScore(score)

	confidence := 0.6
	switch {
	case score > 80 || score < 30:
		confidence = 0.9
	case score > 60 || score < 40:
		confidence = 0.75
	}
	return score, confidence
}

// explain emits feature-importance style explanations for non-trivial
// scores. Low scores need no explanation.
func (d *ML) explain(inputs map[string]float64, score float64) []string {
	if score < 40 {
		return nil
	}

	var explanations []string
	if inputs["amount_normalized"] > 0.7 {
		explanations = append(explanations, "ML: Unusual transaction amount pattern")
	}
	if inputs["velocity"] > 0.6 {
		explanations = append(explanations, "ML: Elevated transaction frequency detected")
	}
	if inputs["geo_risk"] > 0.6 {
		explanations = append(explanations, "ML: Geographic pattern anomaly")
	}
	if inputs["device_risk"] > 0.5 {
		explanations = append(explanations, "ML: Device fingerprint risk signal")
	}
	if inputs["frequency_deviation"] > 0.7 {
		explanations = append(explanations, "ML: Behavioral frequency anomaly")
	}
	if len(explanations) == 0 && score > 50 {
		explanations = append(explanations, "ML: Combined risk factors elevated")
	}
	return explanations
}
