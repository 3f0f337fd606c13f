package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/factory"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/repository"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
	"github.com/vibast-solutions/ms-go-gateway-hub/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)
)

type createPaymentRequest interface {
	GetShopId() string
	GetMerchantOrderId() string
	GetGateway() string
	GetAmountCents() int64
	GetCurrency() string
	GetSourceCurrency() string
	GetAmountEditable() bool
	GetMaxPayments() int32
	GetStatusCallbackUrl() string
	GetReturnUrl() string
}

type listPaymentsRequest interface {
	GetShopId() string
	GetGateway() string
	GetHasStatus() bool
	GetStatus() status.Status
	GetLimit() int32
	GetOffset() int32
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayName, gatewayPaymentID string) (*entity.Payment, error)
	FindByShopOrder(ctx context.Context, shopID, merchantOrderID string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
	ListPaidByShop(ctx context.Context, shopID string) ([]*entity.Payment, error)
	ListDueCallbackDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type webhookAuditRepository interface {
	Create(ctx context.Context, audit *entity.WebhookAudit) error
}

type shopSettingsRepository interface {
	ListByShop(ctx context.Context, shopID string) ([]*entity.ShopGatewaySettings, error)
}

// pollController is the slice of the polling scheduler the reconciliation
// side needs: start watching a new payment, stop watching a closed one.
type pollController interface {
	Schedule(payment *entity.Payment)
	Cancel(paymentID uint64) bool
}

type PaymentService struct {
	paymentRepo  paymentRepository
	eventRepo    paymentEventRepository
	auditRepo    webhookAuditRepository
	settingsRepo shopSettingsRepository
	gateways     *gateway.Registry
	paymentsCfg  config.PaymentsConfig
	polling      config.PollingConfig
	poller       pollController
	locks        *keyedMutex
	callbackHTTP *http.Client
	logger       logrus.FieldLogger
}

func NewPaymentService(
	paymentRepo paymentRepository,
	eventRepo paymentEventRepository,
	auditRepo webhookAuditRepository,
	settingsRepo shopSettingsRepository,
	gateways *gateway.Registry,
	paymentsCfg config.PaymentsConfig,
	pollingCfg config.PollingConfig,
) *PaymentService {
	timeout := paymentsCfg.CallbackHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PaymentService{
		paymentRepo:  paymentRepo,
		eventRepo:    eventRepo,
		auditRepo:    auditRepo,
		settingsRepo: settingsRepo,
		gateways:     gateways,
		paymentsCfg:  paymentsCfg,
		polling:      pollingCfg,
		locks:        newKeyedMutex(),
		callbackHTTP: &http.Client{Timeout: timeout},
		logger:       factory.NewModuleLogger("payment-service"),
	}
}

// SetPollController wires the polling scheduler after construction; the
// scheduler itself feeds events back into this service.
func (s *PaymentService) SetPollController(poller pollController) {
	s.poller = poller
}

func (s *PaymentService) CreatePayment(ctx context.Context, req createPaymentRequest) (*entity.Payment, error) {
	shopID := strings.TrimSpace(req.GetShopId())
	if shopID == "" {
		return nil, ErrInvalidRequest
	}

	merchantOrderID := strings.TrimSpace(req.GetMerchantOrderId())
	if merchantOrderID == "" {
		merchantOrderID = uuid.NewString()
	} else {
		existing, err := s.paymentRepo.FindByShopOrder(ctx, shopID, merchantOrderID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	gatewayName := strings.TrimSpace(strings.ToUpper(req.GetGateway()))
	gatewayClient, err := s.gateways.Get(gatewayName)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotSupported) {
			return nil, ErrGatewayUnsupported
		}
		return nil, err
	}

	submitOutput, err := gatewayClient.SubmitPayment(ctx, &gateway.SubmitInput{
		MerchantOrderID: merchantOrderID,
		AmountCents:     req.GetAmountCents(),
		Currency:        strings.ToUpper(strings.TrimSpace(req.GetCurrency())),
		SourceCurrency:  normalizeOptionalString(req.GetSourceCurrency()),
		CallbackURL:     strings.TrimSpace(req.GetStatusCallbackUrl()),
		ReturnURL:       strings.TrimSpace(req.GetReturnUrl()),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &entity.Payment{
		ShopID:            shopID,
		MerchantOrderID:   merchantOrderID,
		Gateway:           gatewayName,
		AmountCents:       req.GetAmountCents(),
		Currency:          strings.ToUpper(strings.TrimSpace(req.GetCurrency())),
		SourceCurrency:    normalizeOptionalString(req.GetSourceCurrency()),
		AmountEditable:    req.GetAmountEditable(),
		MaxPayments:       normalizeOptionalInt32(req.GetMaxPayments()),
		Status:            status.Pending,
		StatusCallbackURL: strings.TrimSpace(req.GetStatusCallbackUrl()),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if id := strings.TrimSpace(submitOutput.GatewayPaymentID); id != "" {
		payment.GatewayPaymentID = &id
	}
	if gatewayClient.RequiresPolling() {
		expiresAt := now.Add(s.polling.ExpiryHorizon)
		payment.ExpiresAt = &expiresAt
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			return nil, ErrPaymentAlreadyExists
		}
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "payment_created",
		NewStatus: string(payment.Status),
		CreatedAt: now,
	})

	if gatewayClient.RequiresPolling() && s.poller != nil {
		s.poller.Schedule(payment)
	}

	return payment, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, req listPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.PaymentFilter{
		ShopID:    strings.TrimSpace(req.GetShopId()),
		Gateway:   strings.TrimSpace(strings.ToUpper(req.GetGateway())),
		HasStatus: req.GetHasStatus(),
		Status:    req.GetStatus(),
		Limit:     limit,
		Offset:    req.GetOffset(),
	}

	return s.paymentRepo.List(ctx, filter)
}

// RecheckPayment forces a single out-of-schedule status query and feeds the
// result through the normal reconciliation path. Operator tool; scheduler
// timers are left untouched.
func (s *PaymentService) RecheckPayment(ctx context.Context, id uint64) (ReconcileResult, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return ReconcileResult{}, err
	}
	if payment == nil {
		return ReconcileResult{}, ErrPaymentNotFound
	}
	if payment.GatewayPaymentID == nil || strings.TrimSpace(*payment.GatewayPaymentID) == "" {
		return ReconcileResult{}, ErrInvalidRequest
	}

	gatewayClient, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return ReconcileResult{}, ErrGatewayUnsupported
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.polling.QueryTimeout)
	defer cancel()

	event, err := gatewayClient.QueryStatus(queryCtx, *payment.GatewayPaymentID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id": id,
			"gateway":    payment.Gateway,
		}).Warn("Manual status re-check failed")
		return ReconcileResult{}, ErrGatewayUnreachable
	}

	return s.Reconcile(ctx, event)
}

func (s *PaymentService) markForCallbackDelivery(payment *entity.Payment, now time.Time) {
	payment.CallbackDeliveryStatus = entity.CallbackDeliveryPending
	payment.CallbackDeliveryAttempts = 0
	payment.CallbackDeliveryNextAt = &now
	payment.CallbackDeliveryLastErr = nil
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeOptionalInt32(v int32) *int32 {
	if v <= 0 {
		return nil
	}
	n := v
	return &n
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
