package domain

import (
	"time"
)

// TransactionInput is the transaction presented to the detection pipeline.
// It is immutable once constructed and lives only for the duration of one
// detection call.
type TransactionInput struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Parties involved
	SourceAccount      string `json:"sourceAccount"`
	DestinationAccount string `json:"destinationAccount"`

	// Optional context
	Channel           string `json:"channel,omitempty"`
	IPAddress         string `json:"ipAddress,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	GeoLocation       string `json:"geoLocation,omitempty"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`

	// Historical context for the same entity, if the caller has it.
	Historical []HistoricalTransaction `json:"historical,omitempty"`

	// Optional metadata; business-rule flags are read from here.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HistoricalTransaction is a prior transaction for the same source entity.
type HistoricalTransaction struct {
	Amount             float64   `json:"amount"`
	Timestamp          time.Time `json:"timestamp"`
	DestinationAccount string    `json:"destinationAccount,omitempty"`
	Channel            string    `json:"channel,omitempty"`
}

// DetectRequest is the API request payload for transaction detection.
type DetectRequest struct {
	TransactionID      string                  `json:"transactionId,omitempty"`
	Amount             float64                 `json:"amount"`
	Currency           string                  `json:"currency,omitempty"`
	SourceAccount      string                  `json:"sourceAccount"`
	DestinationAccount string                  `json:"destinationAccount"`
	Channel            string                  `json:"channel,omitempty"`
	IPAddress          string                  `json:"ipAddress,omitempty"`
	DeviceFingerprint  string                  `json:"deviceFingerprint,omitempty"`
	GeoLocation        string                  `json:"geoLocation,omitempty"`
	Timestamp          *time.Time              `json:"timestamp,omitempty"`
	Historical         []HistoricalTransaction `json:"historical,omitempty"`
	Metadata           map[string]interface{}  `json:"metadata,omitempty"`
}

// ToTransaction converts a request to a TransactionInput for the given tenant.
func (r *DetectRequest) ToTransaction(tenantID string) *TransactionInput {
	ts := time.Now().UTC()
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return &TransactionInput{
		ID:                 r.TransactionID,
		TenantID:           tenantID,
		Amount:             r.Amount,
		Currency:           currency,
		SourceAccount:      r.SourceAccount,
		DestinationAccount: r.DestinationAccount,
		Channel:            r.Channel,
		IPAddress:          r.IPAddress,
		DeviceFingerprint:  r.DeviceFingerprint,
		GeoLocation:        r.GeoLocation,
		Timestamp:          ts,
		Historical:         r.Historical,
		Metadata:           r.Metadata,
	}
}
