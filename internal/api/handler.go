package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/repository"
)

// GlobalTenantID marks policies that apply to every tenant. Stored as "*"
// in the database; the policy engine represents global scope as an empty
// tenant ID.
const GlobalTenantID = "*"

// maxBatchSize bounds a single POST /detect/batch request.
const maxBatchSize = 100

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *engine.DetectionEngine
	policies *policy.Engine
	stats    *metrics.InMemory
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, det *engine.DetectionEngine, policies *policy.Engine, stats *metrics.InMemory, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   det,
		policies: policies,
		stats:    stats,
		version:  version,
	}
}

// DetectResponse is the response for POST /detect.
type DetectResponse struct {
	Detection *domain.DetectionOutput `json:"detection"`
	AlertID   string                  `json:"alertId,omitempty"`
}

// Detect handles POST /detect requests: one transaction, synchronous scoring.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if msg := validateDetectRequest(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	tx := req.ToTransaction(tenantID)
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
	}

	out, err := h.engine.Process(ctx, tx)
	if err != nil {
		slog.Error("detection failed", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "detection failed",
		})
		return
	}
	out.Metadata.TraceID = traceID

	resp := DetectResponse{Detection: out}
	resp.AlertID = h.persistDetection(ctx, tenantID, out)

	writeJSON(w, http.StatusOK, resp)
}

// BatchRequest is the request body for POST /detect/batch.
type BatchRequest struct {
	Transactions []domain.DetectRequest `json:"transactions"`
}

// BatchResponseItem is one entry in the batch response, in input order.
type BatchResponseItem struct {
	Index     int                     `json:"index"`
	Detection *domain.DetectionOutput `json:"detection,omitempty"`
	AlertID   string                  `json:"alertId,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// BatchResponse is the response for POST /detect/batch.
type BatchResponse struct {
	Items     []BatchResponseItem `json:"items"`
	Processed int                 `json:"processed"`
	Failed    int                 `json:"failed"`
}

// DetectBatch handles POST /detect/batch: concurrent scoring of up to
// maxBatchSize transactions. Per-transaction failures are reported in
// place and never fail the whole batch.
func (h *Handler) DetectBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}
	if len(req.Transactions) > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "batch size exceeds limit of " + strconv.Itoa(maxBatchSize),
		})
		return
	}

	txs := make([]*domain.TransactionInput, len(req.Transactions))
	for i := range req.Transactions {
		tx := req.Transactions[i].ToTransaction(tenantID)
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		txs[i] = tx
	}

	items := h.engine.ProcessBatch(ctx, txs)

	resp := BatchResponse{Items: make([]BatchResponseItem, len(items))}
	for i, item := range items {
		entry := BatchResponseItem{Index: i}
		if item.Err != nil {
			entry.Error = item.Err.Error()
			resp.Failed++
		} else {
			entry.Detection = item.Output
			entry.AlertID = h.persistDetection(ctx, tenantID, item.Output)
			resp.Processed++
		}
		resp.Items[i] = entry
	}

	writeJSON(w, http.StatusOK, resp)
}

// persistDetection stores the detection, creates an alert when the score
// crossed the threshold, and publishes pipeline events. Persistence is
// best-effort: a storage failure never fails the detection response.
// Returns the created alert ID, if any.
func (h *Handler) persistDetection(ctx context.Context, tenantID string, out *domain.DetectionOutput) string {
	if h.repo != nil {
		if err := h.repo.SaveDetection(ctx, tenantID, out); err != nil {
			slog.Error("failed to save detection", "detection_id", out.ID, "error", err)
		}
	}

	if h.bus != nil {
		if payload, err := json.Marshal(out); err == nil {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicDetectionCompleted, payload); err != nil {
				slog.Error("failed to publish detection event", "detection_id", out.ID, "error", err)
			}
		}
	}

	if !out.ShouldAlert {
		return ""
	}

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

	if h.repo != nil {
		if err := h.repo.SaveAlert(ctx, tenantID, alert); err != nil {
			slog.Error("failed to save alert", "alert_id", alert.ID, "error", err)
			return ""
		}
	}

	if h.bus != nil {
		if payload, err := json.Marshal(alert); err == nil {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAlertCreated, payload); err != nil {
				slog.Error("failed to publish alert event", "alert_id", alert.ID, "error", err)
			}
		}
	}

	slog.Info("alert created",
		"alert_id", alert.ID,
		"tx_id", out.TransactionID,
		"severity", out.Severity,
		"risk_score", out.RiskScore,
	)

	return alert.ID
}

func validateDetectRequest(req *domain.DetectRequest) string {
	if req.Amount <= 0 {
		return "amount must be positive"
	}
	if req.SourceAccount == "" || req.DestinationAccount == "" {
		return "sourceAccount and destinationAccount are required"
	}
	return ""
}

// GetDetection retrieves a detection result by ID.
func (h *Handler) GetDetection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	detectionID := chi.URLParam(r, "id")

	if detectionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "detection id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	out, err := h.repo.GetDetection(ctx, tenantID, detectionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "detection not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListAlerts returns alerts for the tenant, optionally filtered by status.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var status domain.AlertStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status = domain.AlertStatus(s)
		if !domain.ValidAlertStatus(status) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid alert status: " + s,
			})
			return
		}
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	alerts, err := h.repo.ListAlerts(ctx, tenantID, status, limit)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert retrieves an alert by ID.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	alert, err := h.repo.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlertRequest is the request body for POST /alerts/{id}/resolve.
type ResolveAlertRequest struct {
	Status     domain.AlertStatus `json:"status,omitempty"`
	Resolution string             `json:"resolution"`
}

// ResolveAlert closes out an alert. Status defaults to RESOLVED; pass
// FALSE_POSITIVE to mark a miss.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	alertID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.AlertStatusResolved
	}
	if !domain.ValidAlertStatus(status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid alert status: " + string(status),
		})
		return
	}

	if err := h.repo.UpdateAlertStatus(ctx, tenantID, alertID, status, req.Resolution); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "alert not found",
			})
			return
		}
		slog.Error("failed to update alert", "alert_id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update alert",
		})
		return
	}

	slog.Info("alert resolved", "alert_id", alertID, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{
		"alertId": alertID,
		"status":  string(status),
	})
}

// ListPolicies returns all policies loaded in the engine.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	loaded := h.policies.GetLoadedPolicies()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": loaded,
		"count":    len(loaded),
		"source":   "database",
	})
}

// CreatePolicyRequest is the request body for creating an override policy.
type CreatePolicyRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Adjustment  float64 `json:"adjustment"`
	Reason      string  `json:"reason"`
	Enabled     bool    `json:"enabled"`
}

// CreatePolicy validates a policy expression, loads it into the engine,
// and persists it globally. Policies are saved under the global tenant so
// they apply to all tenants.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	cfg := &domain.PolicyConfig{
		ID:          req.ID,
		TenantID:    "",
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Adjustment:  req.Adjustment,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	if err := h.policies.LoadPolicy(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid policy: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, GlobalTenantID, cfg); err != nil {
			slog.Error("failed to save policy", "policy_id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	slog.Info("policy created", "policy_id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"policy":  cfg,
		"message": "Policy created and loaded.",
	})
}

// ReloadPolicies reloads the global policy set from the database into the
// engine, replacing whatever is currently loaded.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}
	if h.policies == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy engine not available",
		})
		return
	}

	stored, err := h.repo.ListPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	// Stored global scope is "*"; the engine represents it as "".
	for _, cfg := range stored {
		if cfg.TenantID == GlobalTenantID {
			cfg.TenantID = ""
		}
	}

	if err := h.policies.ReloadPolicies(stored); err != nil {
		slog.Error("failed to reload policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "count", len(stored))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   len(stored),
	})
}

// MetricsStats returns a snapshot of pipeline metrics.
func (h *Handler) MetricsStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "metrics not available",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
