package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLinearNormalize(t *testing.T) {
	tests := []struct {
		name                           string
		value, minVal, maxVal          float64
		targetMin, targetMax, expected float64
	}{
		{"midpoint", 5, 0, 10, 0, 100, 50},
		{"below range clamps", -5, 0, 10, 0, 100, 0},
		{"above range clamps", 15, 0, 10, 0, 100, 100},
		{"zero-width source", 7, 4, 4, 0, 100, 50},
		{"custom target", 5, 0, 10, 10, 20, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LinearNormalize(tt.value, tt.minVal, tt.maxVal, tt.targetMin, tt.targetMax)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %.2f, got %.2f", tt.expected, got)
			}
		})
	}
}

func TestSigmoidNormalize(t *testing.T) {
	center := SigmoidNormalize(0.5, 0.5, 10)
	if math.Abs(center-50) > 1e-9 {
		t.Errorf("expected 50 at center, got %.4f", center)
	}

	high := SigmoidNormalize(1.0, 0.5, 10)
	low := SigmoidNormalize(0.0, 0.5, 10)
	if high <= 90 {
		t.Errorf("expected high output near 100, got %.4f", high)
	}
	if low >= 10 {
		t.Errorf("expected low output near 0, got %.4f", low)
	}
}

func TestZScoreNormalize(t *testing.T) {
	if got := ZScoreNormalize(100, 100, 0, 3); got != 50 {
		t.Errorf("expected neutral 50 with zero std, got %.2f", got)
	}
	if got := ZScoreNormalize(100, 100, 20, 3); math.Abs(got-50) > 1e-9 {
		t.Errorf("expected 50 at mean, got %.2f", got)
	}
	// Deviation past the clamp pins at 100
	if got := ZScoreNormalize(1000, 100, 20, 3); math.Abs(got-100) > 1e-9 {
		t.Errorf("expected 100 beyond max z, got %.2f", got)
	}
}

func TestPercentileNormalize(t *testing.T) {
	if got := PercentileNormalize(5, nil); got != 50 {
		t.Errorf("expected neutral 50 for empty population, got %.2f", got)
	}

	ref := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := PercentileNormalize(5.5, ref); math.Abs(got-50) > 1e-9 {
		t.Errorf("expected 50th percentile, got %.2f", got)
	}
	if got := PercentileNormalize(100, ref); math.Abs(got-100) > 1e-9 {
		t.Errorf("expected 100th percentile, got %.2f", got)
	}
}

func TestDecayOldScore(t *testing.T) {
	got := DecayOldScore(80, 40, 0.8)
	if math.Abs(got-72) > 1e-9 {
		t.Errorf("expected 72, got %.2f", got)
	}
}

func TestCombine(t *testing.T) {
	scores := []float64{30, 60, 90}

	mean, err := Combine(scores, CombineMean, nil)
	if err != nil {
		t.Fatalf("mean failed: %v", err)
	}
	if math.Abs(mean-60) > 1e-9 {
		t.Errorf("expected mean 60, got %.2f", mean)
	}

	weighted, err := Combine(scores, CombineWeighted, []float64{1, 0, 0})
	if err != nil {
		t.Fatalf("weighted failed: %v", err)
	}
	if math.Abs(weighted-30) > 1e-9 {
		t.Errorf("expected weighted 30, got %.2f", weighted)
	}

	maxScore, err := Combine(scores, CombineMax, nil)
	if err != nil {
		t.Fatalf("max failed: %v", err)
	}
	if maxScore != 90 {
		t.Errorf("expected max 90, got %.2f", maxScore)
	}

	rms, err := Combine(scores, CombineRMS, nil)
	if err != nil {
		t.Fatalf("rms failed: %v", err)
	}
	want := math.Sqrt((900 + 3600 + 8100) / 3.0)
	if math.Abs(rms-want) > 1e-9 {
		t.Errorf("expected rms %.4f, got %.4f", want, rms)
	}

	if _, err := Combine(scores, "median", nil); err == nil {
		t.Error("expected error for unknown combination method")
	}
}

func TestScoreCompositeWeighted(t *testing.T) {
	s := NewRiskScorer(nil, nil)

	result := s.Score(
		map[string]float64{"statistical": 80, "behavioral": 60, "ml": 40},
		map[string]float64{"statistical": 1.0, "behavioral": 1.0, "ml": 1.0},
	)

	// 80*0.25 + 60*0.35 + 40*0.40 = 57
	if math.Abs(result.CompositeScore-57) > 1e-9 {
		t.Errorf("expected composite 57, got %.2f", result.CompositeScore)
	}
	if result.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %.2f", result.Confidence)
	}
	if len(result.Breakdown) != 3 {
		t.Errorf("expected breakdown for 3 detectors, got %d", len(result.Breakdown))
	}
}

func TestScoreZeroConfidenceNeutral(t *testing.T) {
	s := NewRiskScorer(nil, nil)

	result := s.Score(
		map[string]float64{"statistical": 95, "behavioral": 95, "ml": 95},
		map[string]float64{"statistical": 0, "behavioral": 0, "ml": 0},
	)

	if result.CompositeScore != 50 {
		t.Errorf("expected neutral 50 with zero effective weight, got %.2f", result.CompositeScore)
	}
}

func TestScoreSingleDetector(t *testing.T) {
	s := NewRiskScorer(map[string]float64{"only": 1.0}, nil)

	result := s.Score(
		map[string]float64{"only": 73.5},
		map[string]float64{"only": 1.0},
	)

	if math.Abs(result.CompositeScore-73.5) > 1e-9 {
		t.Errorf("expected raw score 73.5, got %.2f", result.CompositeScore)
	}
}

func TestScoreMissingConfidenceDefaultsFull(t *testing.T) {
	s := NewRiskScorer(nil, nil)

	result := s.Score(map[string]float64{"statistical": 60}, nil)
	if math.Abs(result.CompositeScore-60) > 1e-9 {
		t.Errorf("expected 60 with implied full confidence, got %.2f", result.CompositeScore)
	}
	if result.Confidence != 1.0 {
		t.Errorf("expected default confidence 1.0, got %.2f", result.Confidence)
	}
}

func TestWeightRenormalization(t *testing.T) {
	s := NewRiskScorer(map[string]float64{"a": 2.0, "b": 2.0}, nil)

	weights := s.Weights()
	if math.Abs(weights["a"]-0.5) > 1e-9 || math.Abs(weights["b"]-0.5) > 1e-9 {
		t.Errorf("expected renormalized weights 0.5/0.5, got %v", weights)
	}
}

// Aggregation is a commutative weighted sum, so any iteration order
// over the detector map must yield the same composite.
func TestScoreOrderInvariance(t *testing.T) {
	s := NewRiskScorer(nil, nil)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		scores := map[string]float64{
			"statistical": rng.Float64() * 100,
			"behavioral":  rng.Float64() * 100,
			"ml":          rng.Float64() * 100,
		}
		confidences := map[string]float64{
			"statistical": rng.Float64(),
			"behavioral":  rng.Float64(),
			"ml":          rng.Float64(),
		}

		first := s.Score(scores, confidences).CompositeScore
		second := s.Score(scores, confidences).CompositeScore
		if first != second {
			t.Fatalf("composite not deterministic: %.6f vs %.6f", first, second)
		}
		if first < 0 || first > 100 {
			t.Fatalf("composite %.2f out of range", first)
		}
	}
}

func TestApplyBusinessRules(t *testing.T) {
	s := NewRiskScorer(nil, nil)

	tests := []struct {
		name     string
		score    float64
		ctx      domain.RuleContext
		expected float64
	}{
		{"no context", 60, domain.RuleContext{}, 60},
		{"vip discount", 60, domain.RuleContext{VIPCustomer: true}, 54},
		{"pattern floor", 40, domain.RuleContext{MatchesKnownPattern: true}, 80},
		{"verified merchant", 60, domain.RuleContext{VerifiedMerchant: true}, 51},
		{"high risk country", 60, domain.RuleContext{HighRiskCountry: true}, 75},
		{"country capped", 95, domain.RuleContext{HighRiskCountry: true}, 100},
		// VIP applies before the floor raise, floor before the surcharge
		{"composed order", 40, domain.RuleContext{VIPCustomer: true, MatchesKnownPattern: true, HighRiskCountry: true}, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.ApplyBusinessRules(tt.score, tt.ctx)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %.2f, got %.2f", tt.expected, got)
			}
		})
	}
}

func TestApplyBusinessRulesPatternFloor(t *testing.T) {
	s := NewRiskScorer(nil, nil)
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 100; i++ {
		score := rng.Float64() * 100
		got := s.ApplyBusinessRules(score, domain.RuleContext{MatchesKnownPattern: true})
		if got < 80 {
			t.Fatalf("pattern match must floor at 80, got %.2f from %.2f", got, score)
		}
	}
}

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		score    float64
		expected string
	}{
		{95, RiskCritical},
		{90, RiskCritical},
		{75, RiskHigh},
		{70, RiskHigh},
		{55, RiskMedium},
		{50, RiskMedium},
		{35, RiskLow},
		{30, RiskLow},
		{10, RiskMinimal},
		{0, RiskMinimal},
	}

	for _, tt := range tests {
		if got := RiskLevel(tt.score); got != tt.expected {
			t.Errorf("score %.0f: expected %s, got %s", tt.score, tt.expected, got)
		}
	}
}
