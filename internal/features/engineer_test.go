package features

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/history"
)

// networkFlaggedProvider simulates an IP intelligence source.
type networkFlaggedProvider struct{}

func (networkFlaggedProvider) Profile(ctx context.Context, tx *domain.TransactionInput) (*domain.EntityProfile, error) {
	return &domain.EntityProfile{VPN: true, Tor: true, AccountAgeDays: 365}, nil
}

func newTestEngineer(t *testing.T) *Engineer {
	t.Helper()
	e, err := NewEngineer(domain.DefaultDetectionConfig(), history.NewUnknownProvider())
	if err != nil {
		t.Fatalf("NewEngineer failed: %v", err)
	}
	return e
}

func baseTx() *domain.TransactionInput {
	return &domain.TransactionInput{
		ID:                 "tx-001",
		TenantID:           "tenant-001",
		Amount:             1000,
		Currency:           "USD",
		SourceAccount:      "acct-100",
		DestinationAccount: "acct-200",
		Channel:            "card",
		Timestamp:          time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
	}
}

func TestExtractBasicAndTemporal(t *testing.T) {
	e := newTestEngineer(t)

	fv, err := e.Extract(context.Background(), baseTx())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if fv.Version != FeatureVersion {
		t.Errorf("expected version %s, got %s", FeatureVersion, fv.Version)
	}
	if got := fv.String("transaction_id", ""); got != "tx-001" {
		t.Errorf("transaction_id = %q", got)
	}
	if got := fv.Float("amount", 0); got != 1000 {
		t.Errorf("amount = %f", got)
	}
	if got := fv.Float("hour_of_day", -1); got != 14 {
		t.Errorf("hour_of_day = %f", got)
	}
	// 2026-03-10 is a Tuesday; Monday = 0.
	if got := fv.Float("day_of_week", -1); got != 1 {
		t.Errorf("day_of_week = %f", got)
	}
	if fv.Bool("is_weekend", true) {
		t.Error("Tuesday should not be a weekend")
	}
	if fv.Bool("is_unusual_hour", true) {
		t.Error("14:30 should not be an unusual hour")
	}
	if fv.Bool("is_end_of_month", true) {
		t.Error("day 10 should not be end of month")
	}
	if got := fv.Float("quarter", 0); got != 1 {
		t.Errorf("quarter = %f", got)
	}
}

func TestExtractUnusualHourAndWeekend(t *testing.T) {
	e := newTestEngineer(t)

	tx := baseTx()
	// 2026-03-14 is a Saturday.
	tx.Timestamp = time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)

	fv, err := e.Extract(context.Background(), tx)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !fv.Bool("is_unusual_hour", false) {
		t.Error("03:00 should be an unusual hour")
	}
	if !fv.Bool("is_weekend", false) {
		t.Error("Saturday should be a weekend")
	}
	if got := fv.Float("day_of_week", -1); got != 5 {
		t.Errorf("Saturday day_of_week = %f, want 5", got)
	}
}

func TestExtractStatisticalFromHistory(t *testing.T) {
	e := newTestEngineer(t)

	tx := baseTx()
	tx.Amount = 45230
	tx.Historical = []domain.HistoricalTransaction{
		{Amount: 700, Timestamp: tx.Timestamp.Add(-48 * time.Hour)},
		{Amount: 2300, Timestamp: tx.Timestamp.Add(-24 * time.Hour)},
	}

	fv, err := e.Extract(context.Background(), tx)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// mean 1500, population std 800 -> z = (45230-1500)/800 = 54.66
	if got := fv.Float("historical_mean", 0); got != 1500 {
		t.Errorf("historical_mean = %f, want 1500", got)
	}
	if got := fv.Float("historical_std", 0); got != 800 {
		t.Errorf("historical_std = %f, want 800", got)
	}
	if got := fv.Float("amount_zscore", 0); got != 54.66 {
		t.Errorf("amount_zscore = %f, want 54.66", got)
	}
	if !fv.Bool("is_above_average", false) {
		t.Error("expected is_above_average")
	}
	if !fv.Bool("is_high_value", false) {
		t.Error("expected is_high_value above 10000")
	}
}

func TestExtractStatisticalDefaults(t *testing.T) {
	e := newTestEngineer(t)

	fv, err := e.Extract(context.Background(), baseTx())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// No history anywhere: priors mean 1500, std 800.
	if got := fv.Float("historical_mean", 0); got != DefaultHistoricalMean {
		t.Errorf("historical_mean = %f, want %f", got, DefaultHistoricalMean)
	}
	// (1000-1500)/800 = -0.63 rounded
	if got := fv.Float("amount_zscore", 0); got != -0.63 {
		t.Errorf("amount_zscore = %f, want -0.63", got)
	}
	if fv.Bool("has_historical_data", true) {
		t.Error("expected no historical data flag")
	}
}

func TestExtractNoveltyFromHistory(t *testing.T) {
	e := newTestEngineer(t)

	tx := baseTx()
	tx.DestinationAccount = "acct-new"
	tx.Channel = "crypto"
	tx.Historical = []domain.HistoricalTransaction{
		{Amount: 500, Timestamp: tx.Timestamp.Add(-24 * time.Hour), DestinationAccount: "acct-200", Channel: "card"},
	}

	fv, err := e.Extract(context.Background(), tx)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !fv.Bool("is_new_destination", false) {
		t.Error("expected new destination")
	}
	if !fv.Bool("is_new_channel", false) {
		t.Error("expected new channel")
	}
	if !fv.Bool("has_historical_data", false) {
		t.Error("expected historical data flag from in-call history")
	}

	// Known destination and channel flip the flags off.
	tx.DestinationAccount = "acct-200"
	tx.Channel = "card"
	fv, _ = e.Extract(context.Background(), tx)
	if fv.Bool("is_new_destination", true) {
		t.Error("destination present in history should not be new")
	}
	if fv.Bool("is_new_channel", true) {
		t.Error("channel present in history should not be new")
	}
}

func TestExtractDeviceAndGeo(t *testing.T) {
	e := newTestEngineer(t)

	t.Run("BaselineGeo", func(t *testing.T) {
		fv, _ := e.Extract(context.Background(), baseTx())
		if got := fv.Float("geo_risk_score", 0); got != 30 {
			t.Errorf("geo_risk_score = %f, want 30", got)
		}
		if fv.Bool("has_device_fingerprint", true) {
			t.Error("expected no device fingerprint")
		}
		if fv.Has("device_hash") {
			t.Error("device_hash should be absent without a fingerprint")
		}
	})

	t.Run("HighRiskCountry", func(t *testing.T) {
		tx := baseTx()
		tx.GeoLocation = "XX:12.34,56.78"

		fv, _ := e.Extract(context.Background(), tx)
		if got := fv.Float("geo_risk_score", 0); got != 85 {
			t.Errorf("geo_risk_score = %f, want 85", got)
		}
	})

	t.Run("NetworkFlagsDefaultFalse", func(t *testing.T) {
		fv, _ := e.Extract(context.Background(), baseTx())
		if fv.Bool("is_vpn", true) {
			t.Error("is_vpn should default to false")
		}
		if fv.Bool("is_tor", true) {
			t.Error("is_tor should default to false")
		}
	})

	t.Run("NetworkFlagsFromProvider", func(t *testing.T) {
		flagged, err := NewEngineer(domain.DefaultDetectionConfig(), networkFlaggedProvider{})
		if err != nil {
			t.Fatalf("NewEngineer failed: %v", err)
		}

		fv, _ := flagged.Extract(context.Background(), baseTx())
		if !fv.Bool("is_vpn", false) {
			t.Error("expected is_vpn from provider")
		}
		if !fv.Bool("is_tor", false) {
			t.Error("expected is_tor from provider")
		}
	})

	t.Run("DeviceHashStable", func(t *testing.T) {
		tx := baseTx()
		tx.DeviceFingerprint = "device-abc"

		fv1, _ := e.Extract(context.Background(), tx)
		fv2, _ := e.Extract(context.Background(), tx)

		h1 := fv1.String("device_hash", "")
		h2 := fv2.String("device_hash", "")
		if h1 == "" || len(h1) != 16 {
			t.Errorf("device_hash = %q, want 16 hex chars", h1)
		}
		if h1 != h2 {
			t.Errorf("device_hash not stable: %q vs %q", h1, h2)
		}
	})
}

func TestExtractRejectsBadInput(t *testing.T) {
	e := newTestEngineer(t)
	ctx := context.Background()

	if _, err := e.Extract(ctx, nil); err == nil {
		t.Error("expected error for nil transaction")
	}

	tx := baseTx()
	tx.Amount = -5
	if _, err := e.Extract(ctx, tx); err == nil {
		t.Error("expected error for negative amount")
	}

	tx = baseTx()
	tx.Timestamp = time.Time{}
	if _, err := e.Extract(ctx, tx); err == nil {
		t.Error("expected error for zero timestamp")
	}
}

func TestExtractProducesAllFeatures(t *testing.T) {
	e := newTestEngineer(t)

	tx := baseTx()
	tx.IPAddress = "10.0.0.1"
	tx.DeviceFingerprint = "device-abc"
	tx.GeoLocation = "US:40.7,-74.0"

	fv, err := e.Extract(context.Background(), tx)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, name := range FeatureNames() {
		if !fv.Has(name) {
			t.Errorf("missing feature %q", name)
		}
	}
}

func TestNewEngineerValidation(t *testing.T) {
	cfg := domain.DefaultDetectionConfig()

	if _, err := NewEngineer(cfg, nil); err == nil {
		t.Error("expected error for nil provider")
	}

	cfg.UnusualHours = []int{25}
	if _, err := NewEngineer(cfg, history.NewUnknownProvider()); err == nil {
		t.Error("expected error for out-of-range hour")
	}
}
