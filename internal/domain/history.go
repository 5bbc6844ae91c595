package domain

import (
	"context"
)

// HistoryProvider supplies entity behavior context to feature extraction.
// Implementations must be safe for concurrent use; the pipeline calls
// Profile once per detection.
//
// The default provider returns deterministic "unknown" values so that
// detection is reproducible when no history source is wired in. A
// store-backed provider replaces those defaults with real lookups without
// changing any detector contract.
type HistoryProvider interface {
	Profile(ctx context.Context, tx *TransactionInput) (*EntityProfile, error)
}

// EntityProfile summarizes an entity's historical behavior at detection
// time. It doubles as the cached snapshot type for the profile cache.
type EntityProfile struct {
	HasHistory bool `json:"hasHistory"`

	// Amount statistics over the entity's prior transactions.
	MeanAmount float64 `json:"meanAmount"`
	StdAmount  float64 `json:"stdAmount"`

	// Novelty flags relative to the entity's history.
	NewDestination bool `json:"newDestination"`
	NewChannel     bool `json:"newChannel"`
	NewDevice      bool `json:"newDevice"`
	NewGeoLocation bool `json:"newGeoLocation"`

	// Pattern deviations.
	FrequencyZScore      float64 `json:"frequencyZscore"`
	TimePatternDeviation float64 `json:"timePatternDeviation"`
	LocationDistanceKM   float64 `json:"locationDistanceKm"`

	AccountAgeDays         int `json:"accountAgeDays"`
	HourlyTransactionCount int `json:"hourlyTransactionCount"`

	// Network reputation flags. Providers without an IP intelligence
	// source leave both false.
	VPN bool `json:"vpn"`
	Tor bool `json:"tor"`
}
