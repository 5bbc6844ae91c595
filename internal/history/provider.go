// Package history provides entity behavior context for feature extraction.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// UnknownProvider returns deterministic "unknown" defaults when no real
// history source is wired in. Every novelty flag is false and every
// deviation is zero, so detection over it is fully reproducible.
type UnknownProvider struct{}

// NewUnknownProvider creates the default provider.
func NewUnknownProvider() *UnknownProvider {
	return &UnknownProvider{}
}

// Profile returns a neutral profile for any transaction.
func (p *UnknownProvider) Profile(ctx context.Context, tx *domain.TransactionInput) (*domain.EntityProfile, error) {
	return &domain.EntityProfile{
		HasHistory:     false,
		AccountAgeDays: 365,
	}, nil
}

// StoreProvider derives entity profiles from stored transactions plus
// cache-backed velocity counters. It replaces UnknownProvider when a
// repository is available, without changing any detector contract.
type StoreProvider struct {
	repo  domain.Repository
	cache domain.Cache

	// lookback bounds the history window used for statistics.
	lookback time.Duration

	// snapshotTTL bounds how long a computed account snapshot is served
	// from cache.
	snapshotTTL time.Duration
}

// accountSnapshot is the cached, transaction-independent summary of an
// account's history. Per-transaction novelty is derived from it on read.
type accountSnapshot struct {
	Count        int       `json:"count"`
	Mean         float64   `json:"mean"`
	Std          float64   `json:"std"`
	Oldest       time.Time `json:"oldest"`
	Destinations []string  `json:"destinations"`
	Channels     []string  `json:"channels"`
	Devices      []string  `json:"devices"`
	Geos         []string  `json:"geos"`
	Hours        [24]int   `json:"hours"`
}

// minHistoryForTimePattern is the smallest history that makes the hour
// histogram meaningful. Below it the time deviation stays zero.
const minHistoryForTimePattern = 5

// NewStoreProvider creates a repository-backed history provider.
func NewStoreProvider(repo domain.Repository, cache domain.Cache) (*StoreProvider, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	return &StoreProvider{
		repo:        repo,
		cache:       cache,
		lookback:    90 * 24 * time.Hour,
		snapshotTTL: 5 * time.Minute,
	}, nil
}

// Profile computes the entity profile for the transaction's source account.
func (p *StoreProvider) Profile(ctx context.Context, tx *domain.TransactionInput) (*domain.EntityProfile, error) {
	if tx.TenantID == "" || tx.SourceAccount == "" {
		return nil, fmt.Errorf("tenantID and source account are required")
	}

	snap, err := p.snapshot(ctx, tx.TenantID, tx.SourceAccount)
	if err != nil {
		return nil, err
	}

	profile := p.deriveProfile(snap, tx)

	// The velocity counter is always live, never part of the snapshot:
	// each call counts toward the current hour window.
	if p.cache != nil {
		count, err := p.cache.IncrementCounter(ctx, tx.TenantID, "velocity:"+tx.SourceAccount, time.Hour)
		if err == nil {
			profile.HourlyTransactionCount = int(count)
		}
	}

	return profile, nil
}

func (p *StoreProvider) snapshot(ctx context.Context, tenantID, account string) (*accountSnapshot, error) {
	key := "history:" + account

	if p.cache != nil {
		data, err := p.cache.Get(ctx, tenantID, key)
		if err == nil && data != nil {
			var snap accountSnapshot
			if err := json.Unmarshal(data, &snap); err == nil {
				return &snap, nil
			}
		}
	}

	since := time.Now().Add(-p.lookback)
	txs, err := p.repo.GetTransactionsByAccount(ctx, tenantID, account, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load account history: %w", err)
	}

	snap := buildSnapshot(txs)

	if p.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			_ = p.cache.Set(ctx, tenantID, key, data, p.snapshotTTL)
		}
	}

	return snap, nil
}

func buildSnapshot(txs []*domain.TransactionInput) *accountSnapshot {
	snap := &accountSnapshot{Count: len(txs)}
	if len(txs) == 0 {
		return snap
	}

	n := float64(len(txs))
	var sum float64
	snap.Oldest = txs[0].Timestamp

	dests := map[string]bool{}
	channels := map[string]bool{}
	devices := map[string]bool{}
	geos := map[string]bool{}

	for _, t := range txs {
		sum += t.Amount
		snap.Hours[t.Timestamp.UTC().Hour()]++
		if t.Timestamp.Before(snap.Oldest) {
			snap.Oldest = t.Timestamp
		}
		if t.DestinationAccount != "" && !dests[t.DestinationAccount] {
			dests[t.DestinationAccount] = true
			snap.Destinations = append(snap.Destinations, t.DestinationAccount)
		}
		if t.Channel != "" && !channels[t.Channel] {
			channels[t.Channel] = true
			snap.Channels = append(snap.Channels, t.Channel)
		}
		if t.DeviceFingerprint != "" && !devices[t.DeviceFingerprint] {
			devices[t.DeviceFingerprint] = true
			snap.Devices = append(snap.Devices, t.DeviceFingerprint)
		}
		if t.GeoLocation != "" && !geos[t.GeoLocation] {
			geos[t.GeoLocation] = true
			snap.Geos = append(snap.Geos, t.GeoLocation)
		}
	}
	snap.Mean = sum / n

	var sq float64
	for _, t := range txs {
		d := t.Amount - snap.Mean
		sq += d * d
	}
	snap.Std = math.Sqrt(sq / n)

	return snap
}

// deriveProfile turns an account snapshot into a per-transaction profile.
func (p *StoreProvider) deriveProfile(snap *accountSnapshot, tx *domain.TransactionInput) *domain.EntityProfile {
	if snap.Count == 0 {
		return &domain.EntityProfile{
			HasHistory:     false,
			NewDestination: tx.DestinationAccount != "",
			NewChannel:     tx.Channel != "",
			NewDevice:      tx.DeviceFingerprint != "",
			NewGeoLocation: tx.GeoLocation != "",
			AccountAgeDays: 0,
		}
	}

	days := time.Since(snap.Oldest).Hours() / 24
	if days < 1 {
		days = 1
	}

	// Daily transaction rate over the window, expressed as a z-score
	// against a one-per-day baseline.
	freqZ := float64(snap.Count)/days - 1

	return &domain.EntityProfile{
		HasHistory:           true,
		MeanAmount:           snap.Mean,
		StdAmount:            snap.Std,
		NewDestination:       tx.DestinationAccount != "" && !contains(snap.Destinations, tx.DestinationAccount),
		NewChannel:           tx.Channel != "" && !contains(snap.Channels, tx.Channel),
		NewDevice:            tx.DeviceFingerprint != "" && !contains(snap.Devices, tx.DeviceFingerprint),
		NewGeoLocation:       tx.GeoLocation != "" && !contains(snap.Geos, tx.GeoLocation),
		FrequencyZScore:      round2(freqZ),
		TimePatternDeviation: round2(timeDeviation(snap, tx.Timestamp)),
		AccountAgeDays:       int(days),
	}
}

// timeDeviation scores how unusual the transaction hour is for the
// account: 0 at the account's busiest hour, 100 at a never-seen hour.
func timeDeviation(snap *accountSnapshot, ts time.Time) float64 {
	if snap.Count < minHistoryForTimePattern {
		return 0
	}
	peak := 0
	for _, c := range snap.Hours {
		if c > peak {
			peak = c
		}
	}
	if peak == 0 {
		return 0
	}
	observed := snap.Hours[ts.UTC().Hour()]
	return 100 * (1 - float64(observed)/float64(peak))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
