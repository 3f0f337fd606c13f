package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
)

type WebhookAuditRepository struct {
	db DBTX
}

func NewWebhookAuditRepository(db DBTX) *WebhookAuditRepository {
	return &WebhookAuditRepository{db: db}
}

func (r *WebhookAuditRepository) Create(ctx context.Context, audit *entity.WebhookAudit) error {
	query := `
		INSERT INTO webhook_audit (
			payment_id, gateway, gateway_payment_id, native_status,
			payload_json, status, amount_mismatch, error, received_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(audit.PaymentID),
		audit.Gateway,
		audit.GatewayPaymentID,
		audit.NativeStatus,
		audit.PayloadJSON,
		audit.Status,
		audit.AmountMismatch,
		nullableStringValue(audit.Error),
		audit.ReceivedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	audit.ID = uint64(id)
	return nil
}

func nullableUint64Value(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
