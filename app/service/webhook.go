package service

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/monitoring"
)

// ProcessWebhook runs one webhook delivery through the verify, normalize,
// reconcile pipeline. Every delivery leaves an audit row whatever the
// outcome; the caller decides the HTTP answer (webhook endpoints acknowledge
// regardless, so gateways do not retry forever against a bug on our side).
func (s *PaymentService) ProcessWebhook(ctx context.Context, gatewayName string, payload []byte, signature string) (ReconcileResult, error) {
	gatewayClient, err := s.gateways.Get(gatewayName)
	if err != nil {
		monitoring.ObserveWebhook(gatewayName, "rejected")
		return ReconcileResult{}, ErrGatewayUnsupported
	}

	if err := gatewayClient.VerifyWebhook(payload, signature); err != nil {
		monitoring.ObserveWebhook(gatewayName, "rejected")
		s.recordRejectedEvent(ctx, nil, &gateway.Event{
			Gateway:    gatewayName,
			RawPayload: payload,
			ReceivedAt: time.Now().UTC(),
		}, err.Error())
		return ReconcileResult{}, err
	}

	event, err := gatewayClient.Normalize(payload)
	if err != nil {
		monitoring.ObserveWebhook(gatewayName, "rejected")
		s.recordRejectedEvent(ctx, nil, &gateway.Event{
			Gateway:    gatewayName,
			RawPayload: payload,
			ReceivedAt: time.Now().UTC(),
		}, err.Error())
		return ReconcileResult{}, err
	}

	result, err := s.Reconcile(ctx, event)
	switch {
	case err != nil:
		monitoring.ObserveWebhook(gatewayName, "rejected")
	case result.Applied:
		monitoring.ObserveWebhook(gatewayName, "processed")
	default:
		monitoring.ObserveWebhook(gatewayName, "duplicate")
	}
	return result, err
}

// WebhookRejectedByPolicy reports whether a webhook failure is an expected
// consequence of event ordering or sender behavior rather than a fault in
// this service. These are logged at warn, not error.
func WebhookRejectedByPolicy(err error) bool {
	return errors.Is(err, gateway.ErrInvalidSignature) ||
		errors.Is(err, gateway.ErrMalformedPayload) ||
		errors.Is(err, ErrUnknownPayment) ||
		errors.Is(err, ErrChargebackAmountMissing)
}
