package domain

import (
	"time"
)

// FeatureVector is the flat set of signals derived from one transaction.
// Produced fresh per detection call and never mutated after creation.
type FeatureVector struct {
	Version     string         `json:"version"`
	ExtractedAt time.Time      `json:"extractedAt"`
	Values      map[string]any `json:"values"`
}

// Float returns a numeric feature, or def when absent or of another type.
// Integer-typed values are widened to float64.
func (f FeatureVector) Float(name string, def float64) float64 {
	switch v := f.Values[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Bool returns a boolean feature, or def when absent or of another type.
func (f FeatureVector) Bool(name string, def bool) bool {
	if v, ok := f.Values[name].(bool); ok {
		return v
	}
	return def
}

// String returns a string feature, or def when absent or of another type.
func (f FeatureVector) String(name string, def string) string {
	if v, ok := f.Values[name].(string); ok {
		return v
	}
	return def
}

// Has reports whether the named feature is present.
func (f FeatureVector) Has(name string) bool {
	_, ok := f.Values[name]
	return ok
}

// DetectionResult is the output of a single detector.
// Score is clamped to [0,100] and Confidence to [0,1] before being returned;
// a value outside those ranges is a detector bug.
type DetectionResult struct {
	Score        float64        `json:"score"`
	Confidence   float64        `json:"confidence"`
	Explanations []string       `json:"explanations"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ScoreContribution is one detector's part of a composite score.
type ScoreContribution struct {
	RawScore     float64 `json:"rawScore"`
	Weight       float64 `json:"weight"`
	Confidence   float64 `json:"confidence"`
	Contribution float64 `json:"contribution"`
}

// ScoringResult is the aggregated result of combining detector scores.
type ScoringResult struct {
	CompositeScore  float64                      `json:"compositeScore"`
	ComponentScores map[string]float64           `json:"componentScores"`
	Breakdown       map[string]ScoreContribution `json:"breakdown"`
	Confidence      float64                      `json:"confidence"`
}

// DetectionOutput is the engine's externally visible artifact for one
// transaction. Downstream services own its storage.
type DetectionOutput struct {
	ID             string             `json:"id"`
	TransactionID  string             `json:"transactionId"`
	TenantID       string             `json:"tenantId"`
	RiskScore      float64            `json:"riskScore"`
	Severity       Severity           `json:"severity"`
	ShouldAlert    bool               `json:"shouldAlert"`
	DetectorScores map[string]float64 `json:"detectorScores"`
	Features       FeatureVector      `json:"features"`
	Explanations   []string           `json:"explanations"`
	ProcessedAt    time.Time          `json:"processedAt"`

	Metadata DetectionMetadata `json:"metadata"`
}

// DetectionMetadata carries per-call processing information.
type DetectionMetadata struct {
	TraceID       string  `json:"traceId,omitempty"`
	ExtractMs     float64 `json:"extractMs"`
	DetectMs      float64 `json:"detectMs"`
	TotalMs       float64 `json:"totalMs"`
	DetectorsRun  int     `json:"detectorsRun"`
	EngineVersion string  `json:"engineVersion"`
}

// Severity is the four-tier alert severity used by the detection engine.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// SeverityForScore classifies a composite score on the engine's four-tier
// scale. Boundaries are closed above: 90.0 is CRITICAL, 89.99 is HIGH.
//
// Note this scale deliberately disagrees with the scorer's five-tier
// RiskLevel about what "LOW" means: here everything below 50 is LOW, while
// the risk-level scale splits that range into LOW and MINIMAL at 30. Both
// scales are kept as-is; unifying them would silently change alert
// reporting downstream.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 70:
		return SeverityHigh
	case score >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RuleContext carries business-rule flags applied after aggregation.
type RuleContext struct {
	VIPCustomer         bool `json:"isVipCustomer"`
	MatchesKnownPattern bool `json:"matchesKnownPattern"`
	VerifiedMerchant    bool `json:"verifiedMerchant"`
	HighRiskCountry     bool `json:"highRiskCountry"`
}

// Metadata keys recognized when deriving a RuleContext from a transaction.
const (
	MetaVIPCustomer         = "is_vip_customer"
	MetaMatchesKnownPattern = "matches_known_pattern"
	MetaVerifiedMerchant    = "verified_merchant"
	MetaHighRiskCountry     = "high_risk_country"
)

// RuleContextFromMetadata reads business-rule flags from transaction
// metadata. Missing or non-boolean values are treated as false.
func RuleContextFromMetadata(meta map[string]interface{}) RuleContext {
	flag := func(key string) bool {
		v, ok := meta[key].(bool)
		return ok && v
	}
	return RuleContext{
		VIPCustomer:         flag(MetaVIPCustomer),
		MatchesKnownPattern: flag(MetaMatchesKnownPattern),
		VerifiedMerchant:    flag(MetaVerifiedMerchant),
		HighRiskCountry:     flag(MetaHighRiskCountry),
	}
}
