// Package features implements the feature extraction stage of the
// detection pipeline.
package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// FeatureVersion tags every extracted vector.
const FeatureVersion = "1.0.0"

// Default priors used for amount statistics when no history is available.
const (
	DefaultHistoricalMean = 1500.0
	DefaultHistoricalStd  = 800.0
)

// Default geo risk scores.
const (
	baselineGeoRisk = 30.0
	elevatedGeoRisk = 85.0
)

// Engineer extracts a flat feature vector from a transaction.
//
// Extraction is a pure function of the transaction plus the injected
// history provider; it never fails for well-formed input. Missing optional
// fields degrade to defaults.
type Engineer struct {
	provider domain.HistoryProvider

	unusualHours      map[int]bool
	highRiskCountries map[string]bool
	highAmount        float64
}

// NewEngineer creates a feature engineer from detection settings.
// provider supplies entity behavior context and must not be nil.
func NewEngineer(cfg domain.DetectionConfig, provider domain.HistoryProvider) (*Engineer, error) {
	if provider == nil {
		return nil, fmt.Errorf("history provider is required")
	}

	hours := make(map[int]bool, len(cfg.UnusualHours))
	for _, h := range cfg.UnusualHours {
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("unusual hour out of range: %d", h)
		}
		hours[h] = true
	}

	countries := make(map[string]bool, len(cfg.HighRiskCountries))
	for _, c := range cfg.HighRiskCountries {
		countries[c] = true
	}

	highAmount := cfg.HighAmountThreshold
	if highAmount <= 0 {
		highAmount = 10000
	}

	return &Engineer{
		provider:          provider,
		unusualHours:      hours,
		highRiskCountries: countries,
		highAmount:        highAmount,
	}, nil
}

// Extract computes all feature families for a transaction.
// An error here is fatal for the transaction: no detection output is
// produced without a feature vector.
func (e *Engineer) Extract(ctx context.Context, tx *domain.TransactionInput) (domain.FeatureVector, error) {
	if tx == nil {
		return domain.FeatureVector{}, fmt.Errorf("transaction is required")
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount < 0 {
		return domain.FeatureVector{}, fmt.Errorf("transaction %s: unusable amount %v", tx.ID, tx.Amount)
	}
	if tx.Timestamp.IsZero() {
		return domain.FeatureVector{}, fmt.Errorf("transaction %s: timestamp is required", tx.ID)
	}

	slog.Debug("extracting features", "tx_id", tx.ID)

	profile, err := e.provider.Profile(ctx, tx)
	if err != nil {
		// Behavior context is best-effort; fall back to unknown defaults.
		slog.Warn("history provider failed, using unknown defaults",
			"tx_id", tx.ID,
			"error", err,
		)
		profile = &domain.EntityProfile{AccountAgeDays: 365}
	}

	values := make(map[string]any, 36)
	e.basicFeatures(values, tx)
	e.temporalFeatures(values, tx)
	e.statisticalFeatures(values, tx, profile)
	e.behavioralFeatures(values, tx, profile)
	e.deviceFeatures(values, tx, profile)

	return domain.FeatureVector{
		Version:     FeatureVersion,
		ExtractedAt: time.Now().UTC(),
		Values:      values,
	}, nil
}

func (e *Engineer) basicFeatures(values map[string]any, tx *domain.TransactionInput) {
	channel := tx.Channel
	if channel == "" {
		channel = "unknown"
	}
	values["transaction_id"] = tx.ID
	values["amount"] = tx.Amount
	values["currency"] = tx.Currency
	values["source_account"] = tx.SourceAccount
	values["destination_account"] = tx.DestinationAccount
	values["channel"] = channel
}

func (e *Engineer) temporalFeatures(values map[string]any, tx *domain.TransactionInput) {
	ts := tx.Timestamp.UTC()
	hour := ts.Hour()
	// Monday = 0 to match the day-of-week convention used downstream.
	dow := (int(ts.Weekday()) + 6) % 7

	values["hour_of_day"] = hour
	values["day_of_week"] = dow
	values["is_weekend"] = dow >= 5
	values["is_unusual_hour"] = e.unusualHours[hour]
	values["is_end_of_month"] = ts.Day() > 25
	values["quarter"] = (int(ts.Month())-1)/3 + 1
}

func (e *Engineer) statisticalFeatures(values map[string]any, tx *domain.TransactionInput, profile *domain.EntityProfile) {
	mean, std := DefaultHistoricalMean, DefaultHistoricalStd
	switch {
	case len(tx.Historical) > 0:
		mean, std = amountStats(tx.Historical)
	case profile.HasHistory && profile.StdAmount > 0:
		mean, std = profile.MeanAmount, profile.StdAmount
	}

	zscore := 0.0
	if std > 0 {
		zscore = (tx.Amount - mean) / std
	}
	pctFromAvg := 0.0
	if mean > 0 {
		pctFromAvg = (tx.Amount - mean) / mean * 100
	}

	values["amount_zscore"] = round2(zscore)
	values["amount_pct_from_avg"] = round2(pctFromAvg)
	values["historical_mean"] = mean
	values["historical_std"] = std
	values["is_above_average"] = tx.Amount > mean
	values["is_high_value"] = tx.Amount > e.highAmount
}

func (e *Engineer) behavioralFeatures(values map[string]any, tx *domain.TransactionInput, profile *domain.EntityProfile) {
	hasHistory := profile.HasHistory || len(tx.Historical) > 0

	newDestination := profile.NewDestination
	newChannel := profile.NewChannel
	if len(tx.Historical) > 0 {
		// In-call history is authoritative for novelty when supplied.
		newDestination, newChannel = noveltyFromHistory(tx)
	}

	values["has_historical_data"] = hasHistory
	values["is_new_destination"] = newDestination
	values["is_new_channel"] = newChannel
	values["frequency_zscore"] = profile.FrequencyZScore
	values["time_pattern_deviation"] = profile.TimePatternDeviation
	values["is_new_geo_location"] = profile.NewGeoLocation
	values["location_distance_km"] = profile.LocationDistanceKM
	values["account_age_days"] = profile.AccountAgeDays
	values["hourly_transaction_count"] = profile.HourlyTransactionCount
}

func (e *Engineer) deviceFeatures(values map[string]any, tx *domain.TransactionInput, profile *domain.EntityProfile) {
	values["has_ip_address"] = tx.IPAddress != ""
	values["has_device_fingerprint"] = tx.DeviceFingerprint != ""

	if tx.DeviceFingerprint != "" {
		sum := sha256.Sum256([]byte(tx.DeviceFingerprint))
		values["device_hash"] = hex.EncodeToString(sum[:])[:16]
	}
	values["is_new_device"] = profile.NewDevice
	values["is_vpn"] = profile.VPN
	values["is_tor"] = profile.Tor

	geoRisk := baselineGeoRisk
	if len(tx.GeoLocation) >= 2 && e.highRiskCountries[tx.GeoLocation[:2]] {
		geoRisk = elevatedGeoRisk
	}
	values["geo_risk_score"] = geoRisk
}

// amountStats computes mean and population standard deviation of the
// historical amounts.
func amountStats(history []domain.HistoricalTransaction) (mean, std float64) {
	n := float64(len(history))
	var sum float64
	for _, h := range history {
		sum += h.Amount
	}
	mean = sum / n

	var sq float64
	for _, h := range history {
		d := h.Amount - mean
		sq += d * d
	}
	std = math.Sqrt(sq / n)
	return mean, std
}

func noveltyFromHistory(tx *domain.TransactionInput) (newDestination, newChannel bool) {
	newDestination = true
	newChannel = tx.Channel != ""
	for _, h := range tx.Historical {
		if h.DestinationAccount == tx.DestinationAccount {
			newDestination = false
		}
		if tx.Channel != "" && h.Channel == tx.Channel {
			newChannel = false
		}
	}
	return newDestination, newChannel
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FeatureNames lists every feature the engineer produces, in family order.
func FeatureNames() []string {
	return []string{
		// Basic
		"transaction_id", "amount", "currency", "source_account",
		"destination_account", "channel",
		// Temporal
		"hour_of_day", "day_of_week", "is_weekend", "is_unusual_hour",
		"is_end_of_month", "quarter",
		// Statistical
		"amount_zscore", "amount_pct_from_avg", "historical_mean",
		"historical_std", "is_above_average", "is_high_value",
		// Behavioral
		"has_historical_data", "is_new_destination", "is_new_channel",
		"frequency_zscore", "time_pattern_deviation", "is_new_geo_location",
		"location_distance_km", "account_age_days", "hourly_transaction_count",
		// Device
		"has_ip_address", "has_device_fingerprint", "device_hash",
		"is_new_device", "is_vpn", "is_tor", "geo_risk_score",
	}
}
