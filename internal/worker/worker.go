// Package worker provides async transaction processing for the Pro tier.
// Transactions published to the ingestion topic are scored through the
// detection engine and their results flow back onto the bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
)

// Worker scores transactions asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *engine.DetectionEngine

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, det *engine.DetectionEngine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: det,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the ingestion topic for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker subscribes under a catch-all tenant for dev setups
// where everything is published as "_global".
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker subscribes to the ingestion topic for one tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processTransaction(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processTransaction(ctx, msg.TenantID, msg)
}

// processTransaction scores one ingested transaction and publishes the
// outcome. The message payload is a TransactionInput in JSON.
func (w *Worker) processTransaction(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var tx domain.TransactionInput
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if tx.TenantID != "" {
		tenantID = tx.TenantID
	}
	tx.TenantID = tenantID
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	slog.Debug("processing transaction",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
	)

	out, err := w.engine.Process(ctx, &tx)
	if err != nil {
		slog.Error("detection failed",
			"tx_id", tx.ID,
			"error", err,
		)
		return err
	}
	out.Metadata.TraceID = msg.ID

	if w.repo != nil {
		if err := w.repo.SaveDetection(ctx, tenantID, out); err != nil {
			slog.Error("failed to save detection",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(out)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicDetectionCompleted, resultPayload); err != nil {
		slog.Error("failed to publish detection result",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	if out.ShouldAlert {
		w.createAlert(ctx, tenantID, out)
	}

	slog.Info("transaction processed",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"risk_score", out.RiskScore,
		"severity", out.Severity,
		"should_alert", out.ShouldAlert,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// createAlert persists an alert for the detection and announces it.
func (w *Worker) createAlert(ctx context.Context, tenantID string, out *domain.DetectionOutput) {
	now := time.Now().UTC()
	alert := &domain.Alert{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		TransactionID: out.TransactionID,
		DetectionID:   out.ID,
		Severity:      out.Severity,
		RiskScore:     out.RiskScore,
		Status:        domain.AlertStatusActive,
		Explanations:  out.Explanations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if w.repo != nil {
		if err := w.repo.SaveAlert(ctx, tenantID, alert); err != nil {
			slog.Error("failed to save alert",
				"alert_id", alert.ID,
				"error", err,
			)
			return
		}
	}

	payload, _ := json.Marshal(alert)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAlertCreated, payload); err != nil {
		slog.Error("failed to publish alert",
			"alert_id", alert.ID,
			"error", err,
		)
	}
}

// Stats reports worker state.
type Stats struct {
	SubscriptionCount int `json:"subscriptionCount"`
}

// GetStats returns worker statistics.
func (w *Worker) GetStats() Stats {
	return Stats{SubscriptionCount: len(w.subscriptions)}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}
