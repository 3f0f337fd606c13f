package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/factory"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/service"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
)

// AdminController exposes the operator surface: scheduler introspection,
// manual re-checks, and payout eligibility reports.
type AdminController struct {
	paymentService *service.PaymentService
	scheduler      *service.PollingScheduler
	logger         logrus.FieldLogger
}

func NewAdminController(paymentService *service.PaymentService, scheduler *service.PollingScheduler) *AdminController {
	return &AdminController{
		paymentService: paymentService,
		scheduler:      scheduler,
		logger:         factory.NewModuleLogger("admin-controller"),
	}
}

func (c *AdminController) PollerStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.scheduler.Stats())
}

func (c *AdminController) PollerTimer(ctx echo.Context) error {
	paymentID, err := strconv.ParseUint(ctx.Param("paymentId"), 10, 64)
	if err != nil || paymentID == 0 {
		return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "invalid payment id"})
	}

	state, ok := c.scheduler.Timer(paymentID)
	if !ok {
		return ctx.JSON(http.StatusNotFound, &types.ErrorResponse{Error: "no active timer for payment"})
	}
	return ctx.JSON(http.StatusOK, state)
}

func (c *AdminController) RecheckPayment(ctx echo.Context) error {
	paymentID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || paymentID == 0 {
		return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "invalid payment id"})
	}

	result, err := c.paymentService.RecheckPayment(ctx.Request().Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			return ctx.JSON(http.StatusNotFound, &types.ErrorResponse{Error: "payment not found"})
		case errors.Is(err, service.ErrInvalidRequest):
			return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "payment has no gateway payment id"})
		case errors.Is(err, service.ErrGatewayUnreachable):
			return ctx.JSON(http.StatusBadGateway, &types.ErrorResponse{Error: "gateway status query failed"})
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Manual re-check failed")
			return ctx.JSON(http.StatusInternalServerError, &types.ErrorResponse{Error: "internal server error"})
		}
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *AdminController) PayoutEligibility(ctx echo.Context) error {
	shopID := strings.TrimSpace(ctx.Param("shopId"))
	if shopID == "" {
		return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "shop id is required"})
	}

	asOf := time.Now().UTC()
	if raw := strings.TrimSpace(ctx.QueryParam("as_of")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "as_of must be RFC3339"})
		}
		asOf = parsed.UTC()
	}

	report, err := c.paymentService.ComputeEligibility(ctx.Request().Context(), shopID, asOf)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: err.Error()})
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Payout eligibility report failed")
		return ctx.JSON(http.StatusInternalServerError, &types.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, report)
}
