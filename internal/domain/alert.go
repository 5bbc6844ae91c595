package domain

import (
	"time"
)

// AlertStatus tracks an alert through the analyst workflow.
type AlertStatus string

const (
	AlertStatusActive        AlertStatus = "ACTIVE"
	AlertStatusInvestigating AlertStatus = "INVESTIGATING"
	AlertStatusResolved      AlertStatus = "RESOLVED"
	AlertStatusFalsePositive AlertStatus = "FALSE_POSITIVE"
)

// Alert is persisted when a detection crosses the alert threshold.
// The detection engine only decides ShouldAlert; creating and storing the
// alert is the caller's job.
type Alert struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenantId"`
	TransactionID string      `json:"transactionId"`
	DetectionID   string      `json:"detectionId"`
	Severity      Severity    `json:"severity"`
	RiskScore     float64     `json:"riskScore"`
	Status        AlertStatus `json:"status"`
	Explanations  []string    `json:"explanations"`
	Resolution    string      `json:"resolution,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ValidAlertStatus reports whether s is a known alert status.
func ValidAlertStatus(s AlertStatus) bool {
	switch s {
	case AlertStatusActive, AlertStatusInvestigating, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	}
	return false
}
