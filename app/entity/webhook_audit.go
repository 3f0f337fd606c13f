package entity

import "time"

const (
	WebhookAuditProcessed int32 = 10
	WebhookAuditRejected  int32 = 20
)

// WebhookAudit is one append-only record per received callback or poll result,
// kept so rejected or mismatched events can be replayed by hand.
type WebhookAudit struct {
	ID uint64

	PaymentID *uint64

	Gateway          string
	GatewayPaymentID string
	NativeStatus     string
	PayloadJSON      string
	Status           int32
	AmountMismatch   bool
	Error            *string

	ReceivedAt time.Time
}
