package entity

import (
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

const (
	CallbackDeliveryNone    int32 = 0
	CallbackDeliveryPending int32 = 1
	CallbackDeliverySuccess int32 = 10
	CallbackDeliveryFailed  int32 = 20
)

type Payment struct {
	ID uint64

	ShopID          string
	MerchantOrderID string

	Gateway          string
	GatewayPaymentID *string

	AmountCents    int64
	Currency       string
	SourceCurrency *string
	AmountEditable bool
	MaxPayments    *int32

	Status status.Status

	// ChargebackAmountCents is set if and only if Status is CHARGEBACK.
	ChargebackAmountCents *int64

	StatusCallbackURL string

	CallbackDeliveryStatus   int32
	CallbackDeliveryAttempts int32
	CallbackDeliveryNextAt   *time.Time
	CallbackDeliveryLastErr  *string

	// Version guards concurrent read-modify-write updates on the same row.
	Version int64

	PaidAt    *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
