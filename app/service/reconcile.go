package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/monitoring"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/repository"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

// ReconcileResult reports whether a canonical event changed the payment and
// the status the payment holds afterwards.
type ReconcileResult struct {
	Applied bool
	Status  status.Status
}

// Reconcile applies one canonical gateway event against the stored payment.
// It is the single authority for status transitions: webhook deliveries and
// poll results both land here. Duplicate and out-of-order events come back
// with Applied=false and leave the record untouched, which makes the whole
// path safe to replay.
func (s *PaymentService) Reconcile(ctx context.Context, event *gateway.Event) (ReconcileResult, error) {
	gatewayClient, err := s.gateways.Get(event.Gateway)
	if err != nil {
		return ReconcileResult{}, ErrGatewayUnsupported
	}

	target, err := gatewayClient.MapStatus(event.NativeStatus)
	if err != nil {
		s.recordRejectedEvent(ctx, nil, event, err.Error())
		return ReconcileResult{}, err
	}

	if target == status.Chargeback && (event.AmountCents == nil || *event.AmountCents <= 0) {
		s.recordRejectedEvent(ctx, nil, event, ErrChargebackAmountMissing.Error())
		return ReconcileResult{}, ErrChargebackAmountMissing
	}

	payment, err := s.paymentRepo.FindByGatewayPaymentID(ctx, event.Gateway, event.GatewayPaymentID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if payment == nil {
		s.recordRejectedEvent(ctx, nil, event, ErrUnknownPayment.Error())
		return ReconcileResult{}, ErrUnknownPayment
	}

	unlock := s.locks.Lock(payment.ID)
	defer unlock()

	result, err := s.applyEvent(ctx, payment, event, target)
	if err != nil {
		return result, err
	}

	monitoring.ObserveReconciliation(event.Gateway, result.Applied)

	// A terminal payment must stop being polled before this call returns so a
	// late timer firing cannot race with the closed record.
	if result.Applied && status.IsTerminal(result.Status) && s.poller != nil {
		s.poller.Cancel(payment.ID)
	}

	return result, nil
}

// applyEvent runs the read-check-write cycle. A version conflict means some
// other writer (for another logical event) got in between our read and write;
// re-read once and re-evaluate, because the transition may have become a
// duplicate in the meantime.
func (s *PaymentService) applyEvent(ctx context.Context, payment *entity.Payment, event *gateway.Event, target status.Status) (ReconcileResult, error) {
	for attempt := 0; ; attempt++ {
		if target == payment.Status {
			s.recordDuplicateEvent(ctx, payment, event)
			return ReconcileResult{Applied: false, Status: payment.Status}, nil
		}

		if !status.CanTransition(payment.Status, target) {
			s.recordAnomalousEvent(ctx, payment, event, target)
			return ReconcileResult{Applied: false, Status: payment.Status}, nil
		}

		now := time.Now().UTC()
		oldStatus := payment.Status
		amountMismatch := s.amountMismatch(payment, event)

		payment.Status = target
		payment.UpdatedAt = now
		if target == status.Paid {
			payment.PaidAt = &now
		}
		if target == status.Chargeback {
			amount := *event.AmountCents
			payment.ChargebackAmountCents = &amount
		}
		if status.IsTerminal(target) {
			s.markForCallbackDelivery(payment, now)
		}

		err := s.paymentRepo.Update(ctx, payment)
		if err == nil {
			s.recordAppliedEvent(ctx, payment, event, oldStatus, amountMismatch)
			return ReconcileResult{Applied: true, Status: target}, nil
		}

		if !errors.Is(err, repository.ErrVersionConflict) {
			return ReconcileResult{}, err
		}
		if attempt >= 1 {
			s.logger.WithFields(logrus.Fields{
				"payment_id": payment.ID,
				"gateway":    event.Gateway,
			}).Error("Reconciliation lost the update race twice")
			return ReconcileResult{}, fmt.Errorf("%w: payment %d", ErrPersistenceConflict, payment.ID)
		}

		fresh, err := s.paymentRepo.FindByID(ctx, payment.ID)
		if err != nil {
			return ReconcileResult{}, err
		}
		if fresh == nil {
			return ReconcileResult{}, ErrUnknownPayment
		}
		*payment = *fresh
	}
}

// ExpirePayment synthesizes an EXPIRED transition for a payment whose expiry
// horizon passed without a terminal gateway report. Goes through the same
// transition policy as gateway events; a payment that settled in the meantime
// is left alone.
func (s *PaymentService) ExpirePayment(ctx context.Context, paymentID uint64) (ReconcileResult, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if payment == nil {
		return ReconcileResult{}, ErrPaymentNotFound
	}

	unlock := s.locks.Lock(payment.ID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		if !status.CanTransition(payment.Status, status.Expired) {
			return ReconcileResult{Applied: false, Status: payment.Status}, nil
		}

		now := time.Now().UTC()
		oldStatus := payment.Status
		payment.Status = status.Expired
		payment.UpdatedAt = now
		s.markForCallbackDelivery(payment, now)

		err := s.paymentRepo.Update(ctx, payment)
		if err == nil {
			old := string(oldStatus)
			_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
				PaymentID: payment.ID,
				EventType: "payment_expired",
				OldStatus: &old,
				NewStatus: string(status.Expired),
				CreatedAt: now,
			})
			if s.poller != nil {
				s.poller.Cancel(payment.ID)
			}
			return ReconcileResult{Applied: true, Status: status.Expired}, nil
		}

		if !errors.Is(err, repository.ErrVersionConflict) {
			return ReconcileResult{}, err
		}
		if attempt >= 1 {
			return ReconcileResult{}, fmt.Errorf("%w: payment %d", ErrPersistenceConflict, payment.ID)
		}

		fresh, err := s.paymentRepo.FindByID(ctx, payment.ID)
		if err != nil {
			return ReconcileResult{}, err
		}
		if fresh == nil {
			return ReconcileResult{}, ErrPaymentNotFound
		}
		*payment = *fresh
	}
}

// amountMismatch flags events whose reported amount disagrees with the stored
// amount beyond the configured tolerance. Status still wins; the flag exists
// for the audit trail, not for automatic repair.
func (s *PaymentService) amountMismatch(payment *entity.Payment, event *gateway.Event) bool {
	if event.AmountCents == nil || payment.AmountEditable {
		return false
	}
	diff := *event.AmountCents - payment.AmountCents
	if diff < 0 {
		diff = -diff
	}
	return diff > s.paymentsCfg.AmountToleranceCents
}

func (s *PaymentService) recordAppliedEvent(ctx context.Context, payment *entity.Payment, event *gateway.Event, oldStatus status.Status, amountMismatch bool) {
	now := time.Now().UTC()
	paymentID := payment.ID
	old := string(oldStatus)
	payload := string(event.RawPayload)

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID:   payment.ID,
		EventType:   "status_changed",
		OldStatus:   &old,
		NewStatus:   string(payment.Status),
		PayloadJSON: &payload,
		CreatedAt:   now,
	})
	_ = s.auditRepo.Create(ctx, &entity.WebhookAudit{
		PaymentID:        &paymentID,
		Gateway:          event.Gateway,
		GatewayPaymentID: event.GatewayPaymentID,
		NativeStatus:     event.NativeStatus,
		PayloadJSON:      string(event.RawPayload),
		Status:           entity.WebhookAuditProcessed,
		AmountMismatch:   amountMismatch,
		ReceivedAt:       event.ReceivedAt,
	})

	if amountMismatch {
		s.logger.WithFields(logrus.Fields{
			"payment_id":   payment.ID,
			"gateway":      event.Gateway,
			"stored_cents": payment.AmountCents,
			"event_cents":  *event.AmountCents,
		}).Warn("Event amount disagrees with stored amount")
	}
}

func (s *PaymentService) recordDuplicateEvent(ctx context.Context, payment *entity.Payment, event *gateway.Event) {
	paymentID := payment.ID
	_ = s.auditRepo.Create(ctx, &entity.WebhookAudit{
		PaymentID:        &paymentID,
		Gateway:          event.Gateway,
		GatewayPaymentID: event.GatewayPaymentID,
		NativeStatus:     event.NativeStatus,
		PayloadJSON:      string(event.RawPayload),
		Status:           entity.WebhookAuditProcessed,
		ReceivedAt:       event.ReceivedAt,
	})
}

func (s *PaymentService) recordAnomalousEvent(ctx context.Context, payment *entity.Payment, event *gateway.Event, target status.Status) {
	now := time.Now().UTC()
	old := string(payment.Status)
	payload := string(event.RawPayload)
	paymentID := payment.ID
	reason := fmt.Sprintf("illegal transition %s -> %s", payment.Status, target)

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"gateway":    event.Gateway,
		"from":       payment.Status,
		"to":         target,
	}).Warn("Rejected out-of-order gateway event")

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID:   payment.ID,
		EventType:   "transition_rejected",
		OldStatus:   &old,
		NewStatus:   string(target),
		PayloadJSON: &payload,
		CreatedAt:   now,
	})
	_ = s.auditRepo.Create(ctx, &entity.WebhookAudit{
		PaymentID:        &paymentID,
		Gateway:          event.Gateway,
		GatewayPaymentID: event.GatewayPaymentID,
		NativeStatus:     event.NativeStatus,
		PayloadJSON:      string(event.RawPayload),
		Status:           entity.WebhookAuditRejected,
		Error:            &reason,
		ReceivedAt:       event.ReceivedAt,
	})
}

func (s *PaymentService) recordRejectedEvent(ctx context.Context, paymentID *uint64, event *gateway.Event, reason string) {
	trimmed := truncate(reason, 1024)
	_ = s.auditRepo.Create(ctx, &entity.WebhookAudit{
		PaymentID:        paymentID,
		Gateway:          event.Gateway,
		GatewayPaymentID: event.GatewayPaymentID,
		NativeStatus:     event.NativeStatus,
		PayloadJSON:      string(event.RawPayload),
		Status:           entity.WebhookAuditRejected,
		Error:            &trimmed,
		ReceivedAt:       event.ReceivedAt,
	})
}
