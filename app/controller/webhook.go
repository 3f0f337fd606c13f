package controller

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/factory"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/service"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
)

type WebhookController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewWebhookController(paymentService *service.PaymentService) *WebhookController {
	return &WebhookController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("webhooks-controller"),
	}
}

// Receive ingests one webhook delivery. The response is HTTP 200 no matter
// what happened inside: a non-2xx answer makes gateways retry, and a retried
// delivery of a payload we cannot process will never start processing.
// Failures land in the audit log and in the logs, not in the status code.
func (c *WebhookController) Receive(ctx echo.Context) error {
	logger := factory.LoggerWithContext(c.logger, ctx)

	gatewayName, err := resolveGatewayParam(ctx.Param("gateway"))
	if err != nil {
		logger.WithField("gateway", ctx.Param("gateway")).Warn("Webhook for unknown gateway")
		return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
	}

	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		logger.WithField("gateway", gatewayName).WithError(err).Warn("Webhook body unreadable")
		return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
	}

	signature := webhookSignature(ctx)
	result, err := c.paymentService.ProcessWebhook(ctx.Request().Context(), gatewayName, payload, signature)
	if err != nil {
		entry := logger.WithFields(logrus.Fields{
			"gateway": gatewayName,
			"error":   err.Error(),
		})
		if service.WebhookRejectedByPolicy(err) {
			entry.Warn("Webhook rejected")
		} else {
			entry.Error("Webhook processing failed")
		}
		return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
	}

	logger.WithFields(logrus.Fields{
		"gateway": gatewayName,
		"applied": result.Applied,
		"status":  result.Status,
	}).Info("Webhook processed")

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
}

// resolveGatewayParam accepts the 4-character gateway id or the canonical
// name in the route segment.
func resolveGatewayParam(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if name, err := gateway.ResolveName(strings.ToLower(trimmed)); err == nil {
		return name, nil
	}
	return gateway.ResolveName(strings.ToUpper(trimmed))
}

// webhookSignature pulls the detached signature from the headers gateways
// actually use. Gateways that embed the signature in the body ignore this
// value.
func webhookSignature(ctx echo.Context) string {
	for _, header := range []string{"Signature", "X-Signature", "X-Webhook-Signature"} {
		if value := strings.TrimSpace(ctx.Request().Header.Get(header)); value != "" {
			return value
		}
	}
	return ""
}
