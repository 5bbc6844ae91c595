package detector

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func fv(values map[string]any) domain.FeatureVector {
	return domain.FeatureVector{
		Version:     "1.0.0",
		ExtractedAt: time.Now().UTC(),
		Values:      values,
	}
}

func hasExplanation(result domain.DetectionResult, substr string) bool {
	for _, e := range result.Explanations {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestStatisticalHighAmount(t *testing.T) {
	d := NewStatistical(domain.DefaultDetectionConfig())

	result, err := d.Detect(fv(map[string]any{
		"amount": 25000.0,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// 25000/10000*15 = 37.5 caps at 30
	if result.Score != 30 {
		t.Errorf("expected score 30, got %.2f", result.Score)
	}
	if !hasExplanation(result, "High transaction amount") {
		t.Errorf("expected amount explanation, got %v", result.Explanations)
	}
}

func TestStatisticalZScore(t *testing.T) {
	d := NewStatistical(domain.DefaultDetectionConfig())

	result, err := d.Detect(fv(map[string]any{
		"amount":        500.0,
		"amount_zscore": 4.0,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// 4.0*5 = 20, under the 25 cap
	if result.Score != 20 {
		t.Errorf("expected score 20, got %.2f", result.Score)
	}
	if !hasExplanation(result, "Amount deviation") {
		t.Errorf("expected zscore explanation, got %v", result.Explanations)
	}
}

func TestStatisticalVelocityAndHour(t *testing.T) {
	d := NewStatistical(domain.DefaultDetectionConfig())

	result, err := d.Detect(fv(map[string]any{
		"amount":                   100.0,
		"is_unusual_hour":          true,
		"hourly_transaction_count": 8,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// unusual hour 15 + velocity (8-5)*5 = 15; total 30
	if result.Score != 30 {
		t.Errorf("expected score 30, got %.2f", result.Score)
	}
	if !hasExplanation(result, "unusual hour") {
		t.Errorf("expected unusual hour explanation, got %v", result.Explanations)
	}
	if !hasExplanation(result, "velocity") {
		t.Errorf("expected velocity explanation, got %v", result.Explanations)
	}
}

func TestStatisticalGeoAndDevice(t *testing.T) {
	d := NewStatistical(domain.DefaultDetectionConfig())

	result, err := d.Detect(fv(map[string]any{
		"amount":         100.0,
		"geo_risk_score": 85.0,
		"is_new_device":  true,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// geo 85*0.2 = 17 + new device 10
	if result.Score != 27 {
		t.Errorf("expected score 27, got %.2f", result.Score)
	}
	if !hasExplanation(result, "High-risk geographic") {
		t.Errorf("expected geo explanation, got %v", result.Explanations)
	}
	if !hasExplanation(result, "New device") {
		t.Errorf("expected device explanation, got %v", result.Explanations)
	}
}

func TestStatisticalConfidence(t *testing.T) {
	d := NewStatistical(domain.DefaultDetectionConfig())

	tests := []struct {
		name   string
		values map[string]any
		want   float64
	}{
		{"no signals", map[string]any{}, 0},
		{"one signal", map[string]any{"amount": 100.0}, 1.0 / 3},
		{"two signals", map[string]any{"amount": 100.0, "amount_zscore": 0.5}, 2.0 / 3},
		{"three signals", map[string]any{"amount": 100.0, "amount_zscore": 0.5, "geo_risk_score": 30.0}, 1},
		{"four signals capped", map[string]any{"amount": 100.0, "amount_zscore": 0.5, "geo_risk_score": 30.0, "hourly_transaction_count": 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := d.Detect(fv(tt.values))
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if math.Abs(result.Confidence-tt.want) > 1e-9 {
				t.Errorf("expected confidence %.3f, got %.3f", tt.want, result.Confidence)
			}
		})
	}
}

func TestBehavioralSpendingDeviation(t *testing.T) {
	d := NewBehavioral()

	result, err := d.Detect(fv(map[string]any{
		"amount_pct_from_avg": 500.0,
		"has_historical_data": true,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// (500-200)/20 = 15, under the 25 cap
	if result.Score != 15 {
		t.Errorf("expected score 15, got %.2f", result.Score)
	}
	if result.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9 with history, got %.2f", result.Confidence)
	}
	if !hasExplanation(result, "Spending") {
		t.Errorf("expected spending explanation, got %v", result.Explanations)
	}
}

func TestBehavioralNovelty(t *testing.T) {
	d := NewBehavioral()

	result, err := d.Detect(fv(map[string]any{
		"is_new_destination":   true,
		"is_new_channel":       true,
		"is_new_geo_location":  true,
		"location_distance_km": 1200.0,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// dest 15 + channel 10 + geo min(25, 1200/100)=12
	if result.Score != 37 {
		t.Errorf("expected score 37, got %.2f", result.Score)
	}
	if !hasExplanation(result, "First-time transaction destination") {
		t.Errorf("expected destination explanation, got %v", result.Explanations)
	}
	if !hasExplanation(result, "new location") {
		t.Errorf("expected geo explanation, got %v", result.Explanations)
	}
	if result.Confidence != 0.5 {
		t.Errorf("expected low confidence without history, got %.2f", result.Confidence)
	}
}

func TestBehavioralFrequency(t *testing.T) {
	d := NewBehavioral()

	high, err := d.Detect(fv(map[string]any{"frequency_zscore": 3.0}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if high.Score != 15 {
		t.Errorf("expected score 15 for high frequency, got %.2f", high.Score)
	}
	if !hasExplanation(high, "frequency") {
		t.Errorf("expected frequency explanation, got %v", high.Explanations)
	}

	dormant, err := d.Detect(fv(map[string]any{"frequency_zscore": -6.0}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	// |-6|*5 = 30 caps at 20
	if dormant.Score != 20 {
		t.Errorf("expected score 20 for dormant reactivation, got %.2f", dormant.Score)
	}
	if !hasExplanation(dormant, "dormant") {
		t.Errorf("expected dormant explanation, got %v", dormant.Explanations)
	}
}

func TestBehavioralNewAccount(t *testing.T) {
	d := NewBehavioral()

	result, err := d.Detect(fv(map[string]any{
		"account_age_days":       12,
		"time_pattern_deviation": 70.0,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// time pattern 70*0.2 = 14 + new account 10
	if result.Score != 24 {
		t.Errorf("expected score 24, got %.2f", result.Score)
	}
	if !hasExplanation(result, "New account") {
		t.Errorf("expected new account explanation, got %v", result.Explanations)
	}
}

func TestMLDeterministicWithoutNoise(t *testing.T) {
	d := NewML()

	values := map[string]any{
		"amount_zscore":            3.0,
		"hourly_transaction_count": 8,
		"geo_risk_score":           85.0,
		"is_new_device":            true,
		"is_new_destination":       true,
	}

	first, err := d.Detect(fv(values))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	second, err := d.Detect(fv(values))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if first.Score != second.Score {
		t.Errorf("expected deterministic score, got %.2f then %.2f", first.Score, second.Score)
	}

	// base 20 + amount 30 (zscore/3=1.0>0.8) + velocity 20 (0.8>0.7)
	// + geo 15 (0.85>0.7) + device 10 + destination 10 = 105, clamped 100
	if first.Score != 100 {
		t.Errorf("expected score 100, got %.2f", first.Score)
	}
	if first.Confidence != 0.9 {
		t.Errorf("expected high confidence at score extreme, got %.2f", first.Confidence)
	}
	if len(first.Explanations) == 0 {
		t.Error("expected ML explanations for a high score")
	}
}

func TestMLConfidenceBands(t *testing.T) {
	d := NewML()

	// No signals: base score 20, below 30 extreme
	low, err := d.Detect(fv(map[string]any{}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if low.Score != 20 {
		t.Errorf("expected base score 20, got %.2f", low.Score)
	}
	if low.Confidence != 0.9 {
		t.Errorf("expected 0.9 confidence at low extreme, got %.2f", low.Confidence)
	}
	if len(low.Explanations) != 0 {
		t.Errorf("expected no explanations for low score, got %v", low.Explanations)
	}

	// Amount 15 + device 10 bonuses: score 45, mid-range
	mid, err := d.Detect(fv(map[string]any{
		"amount_zscore": 2.0,
		"is_new_device": true,
	}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if mid.Score != 45 {
		t.Errorf("expected score 45, got %.2f", mid.Score)
	}
	if mid.Confidence != 0.6 {
		t.Errorf("expected 0.6 confidence mid-range, got %.2f", mid.Confidence)
	}
}

func TestMLUnavailable(t *testing.T) {
	d := NewML(WithoutModel())

	result, err := d.Detect(fv(map[string]any{"amount_zscore": 10.0}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.Score != 50 {
		t.Errorf("expected neutral score 50, got %.2f", result.Score)
	}
	if result.Confidence != 0 {
		t.Errorf("expected zero confidence, got %.2f", result.Confidence)
	}
	if !hasExplanation(result, "ML model unavailable") {
		t.Errorf("expected unavailable explanation, got %v", result.Explanations)
	}
}

func TestMLNoiseClamped(t *testing.T) {
	d := NewML(WithNoise(func() float64 { return 1000 }))

	result, err := d.Detect(fv(map[string]any{}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// base 20, noise clamped to +5
	if result.Score != 25 {
		t.Errorf("expected score 25 with clamped noise, got %.2f", result.Score)
	}
}

// TestDetectorOutputRanges feeds randomized feature vectors to every
// detector and verifies the output contract holds regardless of input.
func TestDetectorOutputRanges(t *testing.T) {
	detectors := []Detector{
		NewStatistical(domain.DefaultDetectionConfig()),
		NewBehavioral(),
		NewML(WithNoise(func() float64 { return rand.Float64()*10 - 5 })),
	}

	rng := rand.New(rand.NewSource(42))
	names := []string{
		"amount", "amount_zscore", "amount_pct_from_avg", "is_unusual_hour",
		"hourly_transaction_count", "geo_risk_score", "is_new_device",
		"is_new_destination", "is_new_channel", "is_new_geo_location",
		"location_distance_km", "frequency_zscore", "time_pattern_deviation",
		"account_age_days", "has_historical_data",
	}

	for i := 0; i < 500; i++ {
		values := make(map[string]any)
		for _, name := range names {
			if rng.Float64() < 0.3 {
				continue // feature absent
			}
			switch rng.Intn(3) {
			case 0:
				values[name] = rng.Float64()*100000 - 10000
			case 1:
				values[name] = rng.Intn(50)
			default:
				values[name] = rng.Intn(2) == 0
			}
		}

		for _, d := range detectors {
			result, err := d.Detect(fv(values))
			if err != nil {
				t.Fatalf("%s: Detect failed: %v", d.Name(), err)
			}
			if result.Score < 0 || result.Score > 100 {
				t.Fatalf("%s: score %.2f out of [0,100] for %v", d.Name(), result.Score, values)
			}
			if result.Confidence < 0 || result.Confidence > 1 {
				t.Fatalf("%s: confidence %.2f out of [0,1] for %v", d.Name(), result.Confidence, values)
			}
		}
	}
}
