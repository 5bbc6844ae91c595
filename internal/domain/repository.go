// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *TransactionInput) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*TransactionInput, error)
	GetTransactionsByAccount(ctx context.Context, tenantID string, account string, since time.Time) ([]*TransactionInput, error)

	// Detection results
	SaveDetection(ctx context.Context, tenantID string, out *DetectionOutput) error
	GetDetection(ctx context.Context, tenantID string, detectionID string) (*DetectionOutput, error)

	// Alert operations
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	GetAlert(ctx context.Context, tenantID string, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, tenantID string, status AlertStatus, limit int) ([]*Alert, error)
	UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status AlertStatus, resolution string) error

	// Override policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *PolicyConfig) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*PolicyConfig, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*PolicyConfig, error)
	DeletePolicy(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
