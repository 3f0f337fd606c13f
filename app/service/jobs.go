package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/mapper"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
)

func (s *PaymentService) RunDispatchCallbacksBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.paymentRepo.ListDueCallbackDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}
		if err := s.dispatchCallback(ctx, payment, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// RunExpirePendingBatch closes payments whose expiry deadline has passed
// without a terminal gateway report. The polling scheduler already does this
// for polled gateways; this sweep is the safety net for push gateways whose
// expiry webhook never arrived.
func (s *PaymentService) RunExpirePendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.paymentRepo.ListExpiredPending(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, payment := range items {
		if payment == nil {
			continue
		}
		if _, err := s.ExpirePayment(ctx, payment.ID); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) dispatchCallback(ctx context.Context, payment *entity.Payment, now time.Time) error {
	if strings.TrimSpace(payment.StatusCallbackURL) == "" {
		errMsg := "status_callback_url is empty"
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryFailed
		payment.CallbackDeliveryNextAt = nil
		payment.CallbackDeliveryLastErr = &errMsg
		payment.UpdatedAt = now
		return s.paymentRepo.Update(ctx, payment)
	}

	payload := &types.PaymentEnvelopeResponse{Payment: mapper.PaymentToResponse(payment)}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payment.StatusCallbackURL, bytes.NewReader(body))
	if err != nil {
		return s.recordDispatchFailure(ctx, payment, now, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Payment-ID", strconv.FormatUint(payment.ID, 10))

	resp, err := s.callbackHTTP.Do(req)
	if err != nil {
		return s.recordDispatchFailure(ctx, payment, now, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.recordDispatchFailure(ctx, payment, now, fmt.Errorf("callback endpoint returned status=%d", resp.StatusCode))
	}

	payment.CallbackDeliveryStatus = entity.CallbackDeliverySuccess
	payment.CallbackDeliveryNextAt = nil
	payment.CallbackDeliveryLastErr = nil
	payment.UpdatedAt = now

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "callback_dispatched",
		NewStatus: string(payment.Status),
		CreatedAt: now,
	})

	return nil
}

func (s *PaymentService) recordDispatchFailure(ctx context.Context, payment *entity.Payment, now time.Time, dispatchErr error) error {
	payment.CallbackDeliveryAttempts++
	trimmed := truncate(dispatchErr.Error(), 1024)
	payment.CallbackDeliveryLastErr = &trimmed

	maxAttempts := s.paymentsCfg.CallbackMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	if payment.CallbackDeliveryAttempts >= maxAttempts {
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryFailed
		payment.CallbackDeliveryNextAt = nil
	} else {
		retryInterval := s.paymentsCfg.CallbackRetryInterval
		if retryInterval <= 0 {
			retryInterval = 5 * time.Minute
		}
		next := now.Add(retryInterval)
		payment.CallbackDeliveryStatus = entity.CallbackDeliveryPending
		payment.CallbackDeliveryNextAt = &next
	}
	payment.UpdatedAt = now

	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return err
	}

	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID: payment.ID,
		EventType: "callback_dispatch_failed",
		NewStatus: string(payment.Status),
		CreatedAt: now,
	})

	return dispatchErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
