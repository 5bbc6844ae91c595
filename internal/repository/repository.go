// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.TransactionInput) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, tenant_id, amount, currency, source_account,
			destination_account, channel, ip_address, device_fingerprint,
			geo_location, timestamp, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.Amount, tx.Currency,
		tx.SourceAccount, tx.DestinationAccount,
		tx.Channel, tx.IPAddress, tx.DeviceFingerprint,
		tx.GeoLocation, tx.Timestamp, time.Now().UTC(),
		string(metadata),
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.TransactionInput, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, amount, currency, source_account,
			   destination_account, channel, ip_address, device_fingerprint,
			   geo_location, timestamp, metadata
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.TransactionInput
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.Amount, &tx.Currency,
		&tx.SourceAccount, &tx.DestinationAccount,
		&tx.Channel, &tx.IPAddress, &tx.DeviceFingerprint,
		&tx.GeoLocation, &tx.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// GetTransactionsByAccount retrieves an account's transactions since a
// point in time, newest first, with tenant isolation.
func (r *SQLRepository) GetTransactionsByAccount(ctx context.Context, tenantID string, account string, since time.Time) ([]*domain.TransactionInput, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, amount, currency, source_account,
			   destination_account, channel, ip_address, device_fingerprint,
			   geo_location, timestamp, metadata
		FROM transactions
		WHERE tenant_id = ?
		  AND source_account = ?
		  AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, account, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.TransactionInput
	for rows.Next() {
		var tx domain.TransactionInput
		var metadata string

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.Amount, &tx.Currency,
			&tx.SourceAccount, &tx.DestinationAccount,
			&tx.Channel, &tx.IPAddress, &tx.DeviceFingerprint,
			&tx.GeoLocation, &tx.Timestamp, &metadata,
		); err != nil {
			return nil, err
		}

		if metadata != "" {
			json.Unmarshal([]byte(metadata), &tx.Metadata)
		}

		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveDetection stores a detection output with tenant isolation.
func (r *SQLRepository) SaveDetection(ctx context.Context, tenantID string, out *domain.DetectionOutput) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	detectorScores, _ := json.Marshal(out.DetectorScores)
	features, _ := json.Marshal(out.Features)
	explanations, _ := json.Marshal(out.Explanations)
	metadata, _ := json.Marshal(out.Metadata)

	shouldAlert := 0
	if out.ShouldAlert {
		shouldAlert = 1
	}

	query := `
		INSERT INTO detections (
			id, tenant_id, tx_id, risk_score, severity, should_alert,
			detector_scores, features, explanations, processed_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		out.ID, tenantID, out.TransactionID,
		out.RiskScore, string(out.Severity), shouldAlert,
		string(detectorScores), string(features), string(explanations),
		out.ProcessedAt, string(metadata),
	)
	return err
}

// GetDetection retrieves a detection by ID with tenant isolation.
func (r *SQLRepository) GetDetection(ctx context.Context, tenantID string, detectionID string) (*domain.DetectionOutput, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, risk_score, severity, should_alert,
			   detector_scores, features, explanations, processed_at, metadata
		FROM detections
		WHERE tenant_id = ? AND id = ?
	`

	var out domain.DetectionOutput
	var severity string
	var shouldAlert int
	var detectorScores, features, explanations, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, detectionID).Scan(
		&out.ID, &out.TenantID, &out.TransactionID,
		&out.RiskScore, &severity, &shouldAlert,
		&detectorScores, &features, &explanations,
		&out.ProcessedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	out.Severity = domain.Severity(severity)
	out.ShouldAlert = shouldAlert == 1
	json.Unmarshal([]byte(detectorScores), &out.DetectorScores)
	json.Unmarshal([]byte(features), &out.Features)
	json.Unmarshal([]byte(explanations), &out.Explanations)
	json.Unmarshal([]byte(metadata), &out.Metadata)

	return &out, nil
}

// SaveAlert stores an alert with tenant isolation.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	explanations, _ := json.Marshal(alert.Explanations)

	query := `
		INSERT INTO alerts (
			id, tenant_id, tx_id, detection_id, severity, risk_score,
			status, explanations, resolution, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.TransactionID, alert.DetectionID,
		string(alert.Severity), alert.RiskScore, string(alert.Status),
		string(explanations), alert.Resolution,
		alert.CreatedAt, alert.UpdatedAt,
	)
	return err
}

// GetAlert retrieves an alert by ID with tenant isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, tx_id, detection_id, severity, risk_score,
			   status, explanations, resolution, created_at, updated_at
		FROM alerts
		WHERE tenant_id = ? AND id = ?
	`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return alert, err
}

// ListAlerts retrieves alerts for a tenant, newest first. An empty
// status matches all statuses.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string, status domain.AlertStatus, limit int) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, tx_id, detection_id, severity, risk_score,
			   status, explanations, resolution, created_at, updated_at
		FROM alerts
		WHERE tenant_id = ?
	`
	args := []any{tenantID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// UpdateAlertStatus transitions an alert to a new status, recording the
// resolution text when one is given.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status domain.AlertStatus, resolution string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if !domain.ValidAlertStatus(status) {
		return fmt.Errorf("%w: unknown alert status %q", ErrInvalidInput, status)
	}

	query := `
		UPDATE alerts
		SET status = ?, resolution = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(status), resolution, time.Now().UTC(), tenantID, alertID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.Alert, error) {
	var alert domain.Alert
	var severity, status, explanations string

	if err := s.Scan(
		&alert.ID, &alert.TenantID, &alert.TransactionID, &alert.DetectionID,
		&severity, &alert.RiskScore, &status, &explanations,
		&alert.Resolution, &alert.CreatedAt, &alert.UpdatedAt,
	); err != nil {
		return nil, err
	}

	alert.Severity = domain.Severity(severity)
	alert.Status = domain.AlertStatus(status)
	json.Unmarshal([]byte(explanations), &alert.Explanations)

	return &alert, nil
}

// SavePolicy stores a policy configuration with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.PolicyConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if policy.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO policies (
			id, tenant_id, name, description, version, expression,
			adjustment, reason, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			adjustment = excluded.adjustment,
			reason = excluded.reason,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.Name, policy.Description,
		policy.Version, policy.Expression, policy.Adjustment,
		policy.Reason, enabled, now, now,
	)
	return err
}

// GetPolicy retrieves the latest enabled version of a policy with
// tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.PolicyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression,
			   adjustment, reason, enabled
		FROM policies
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.PolicyConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &cfg.Adjustment,
		&cfg.Reason, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1

	return &cfg, nil
}

// ListPolicies retrieves all enabled policies for a tenant.
func (r *SQLRepository) ListPolicies(ctx context.Context, tenantID string) ([]*domain.PolicyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression,
			   adjustment, reason, enabled
		FROM policies
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.PolicyConfig
	for rows.Next() {
		var cfg domain.PolicyConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &cfg.Adjustment,
			&cfg.Reason, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		policies = append(policies, &cfg)
	}

	return policies, rows.Err()
}

// DeletePolicy soft-deletes a policy by setting enabled = 0.
func (r *SQLRepository) DeletePolicy(ctx context.Context, tenantID string, policyID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE policies
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, policyID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
