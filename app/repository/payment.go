package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrVersionConflict      = errors.New("payment version conflict")
)

const paymentColumns = `id, shop_id, merchant_order_id, gateway, gateway_payment_id,
		amount_cents, currency, source_currency, amount_editable, max_payments,
		status, chargeback_amount_cents, status_callback_url,
		callback_delivery_status, callback_delivery_attempts, callback_delivery_next_at, callback_delivery_last_error,
		version, paid_at, expires_at, created_at, updated_at`

type PaymentFilter struct {
	ShopID    string
	Gateway   string
	HasStatus bool
	Status    status.Status
	Limit     int32
	Offset    int32
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			shop_id, merchant_order_id, gateway, gateway_payment_id,
			amount_cents, currency, source_currency, amount_editable, max_payments,
			status, chargeback_amount_cents, status_callback_url,
			callback_delivery_status, callback_delivery_attempts, callback_delivery_next_at, callback_delivery_last_error,
			version, paid_at, expires_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.ShopID,
		payment.MerchantOrderID,
		payment.Gateway,
		nullableStringValue(payment.GatewayPaymentID),
		payment.AmountCents,
		payment.Currency,
		nullableStringValue(payment.SourceCurrency),
		payment.AmountEditable,
		nullableInt32Value(payment.MaxPayments),
		string(payment.Status),
		nullableInt64Value(payment.ChargebackAmountCents),
		payment.StatusCallbackURL,
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		payment.Version,
		nullableTimeValue(payment.PaidAt),
		nullableTimeValue(payment.ExpiresAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// Update is a compare-and-set keyed on the row version. Zero affected rows
// with an existing id means a concurrent writer won; callers re-read and
// retry once.
func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			gateway_payment_id = ?,
			amount_cents = ?,
			status = ?,
			chargeback_amount_cents = ?,
			callback_delivery_status = ?,
			callback_delivery_attempts = ?,
			callback_delivery_next_at = ?,
			callback_delivery_last_error = ?,
			version = version + 1,
			paid_at = ?,
			expires_at = ?,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(payment.GatewayPaymentID),
		payment.AmountCents,
		string(payment.Status),
		nullableInt64Value(payment.ChargebackAmountCents),
		payment.CallbackDeliveryStatus,
		payment.CallbackDeliveryAttempts,
		nullableTimeValue(payment.CallbackDeliveryNextAt),
		nullableStringValue(payment.CallbackDeliveryLastErr),
		nullableTimeValue(payment.PaidAt),
		nullableTimeValue(payment.ExpiresAt),
		payment.UpdatedAt,
		payment.ID,
		payment.Version,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		exists, err := r.FindByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if exists == nil {
			return ErrPaymentNotFound
		}
		return ErrVersionConflict
	}

	payment.Version++
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByGatewayPaymentID(ctx context.Context, gateway, gatewayPaymentID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway = ? AND gateway_payment_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, gateway, gatewayPaymentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByShopOrder(ctx context.Context, shopID, merchantOrderID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE shop_id = ? AND merchant_order_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, shopID, merchantOrderID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if strings.TrimSpace(filter.ShopID) != "" {
		conditions = append(conditions, "shop_id = ?")
		args = append(args, filter.ShopID)
	}
	if strings.TrimSpace(filter.Gateway) != "" {
		conditions = append(conditions, "gateway = ?")
		args = append(args, filter.Gateway)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.queryPayments(ctx, query, args...)
}

func (r *PaymentRepository) ListPaidByShop(ctx context.Context, shopID string) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE shop_id = ? AND status = ? AND paid_at IS NOT NULL
		ORDER BY paid_at ASC`

	return r.queryPayments(ctx, query, shopID, string(status.Paid))
}

// ListOpenByGateway returns non-terminal payments for one gateway; the
// polling scheduler rehydrates its timers from this on startup.
func (r *PaymentRepository) ListOpenByGateway(ctx context.Context, gateway string) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE gateway = ? AND status IN (?, ?) AND gateway_payment_id IS NOT NULL
		ORDER BY created_at ASC`

	return r.queryPayments(ctx, query, gateway, string(status.Pending), string(status.Processing))
}

func (r *PaymentRepository) ListDueCallbackDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE callback_delivery_status = ?
		  AND callback_delivery_next_at IS NOT NULL
		  AND callback_delivery_next_at <= ?
		ORDER BY callback_delivery_next_at ASC
		LIMIT ?`

	return r.queryPayments(ctx, query, entity.CallbackDeliveryPending, now, limit)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE status IN (?, ?)
		  AND expires_at IS NOT NULL
		  AND expires_at <= ?
		ORDER BY expires_at ASC
		LIMIT ?`

	return r.queryPayments(ctx, query, string(status.Pending), string(status.Processing), now, limit)
}

func (r *PaymentRepository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var gatewayPaymentID sql.NullString
	var sourceCurrency sql.NullString
	var maxPayments sql.NullInt32
	var statusRaw string
	var chargebackAmount sql.NullInt64
	var callbackNextAt sql.NullTime
	var callbackLastErr sql.NullString
	var paidAt sql.NullTime
	var expiresAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.ShopID,
		&payment.MerchantOrderID,
		&payment.Gateway,
		&gatewayPaymentID,
		&payment.AmountCents,
		&payment.Currency,
		&sourceCurrency,
		&payment.AmountEditable,
		&maxPayments,
		&statusRaw,
		&chargebackAmount,
		&payment.StatusCallbackURL,
		&payment.CallbackDeliveryStatus,
		&payment.CallbackDeliveryAttempts,
		&callbackNextAt,
		&callbackLastErr,
		&payment.Version,
		&paidAt,
		&expiresAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	parsed, err := status.Parse(statusRaw)
	if err != nil {
		return err
	}
	payment.Status = parsed
	payment.GatewayPaymentID = stringPtrFromNull(gatewayPaymentID)
	payment.SourceCurrency = stringPtrFromNull(sourceCurrency)
	payment.MaxPayments = int32PtrFromNull(maxPayments)
	payment.ChargebackAmountCents = int64PtrFromNull(chargebackAmount)
	payment.CallbackDeliveryNextAt = timePtrFromNull(callbackNextAt)
	payment.CallbackDeliveryLastErr = stringPtrFromNull(callbackLastErr)
	payment.PaidAt = timePtrFromNull(paidAt)
	payment.ExpiresAt = timePtrFromNull(expiresAt)

	return nil
}
