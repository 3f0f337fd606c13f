package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.ShopId = strings.TrimSpace(body.ShopId)
	body.MerchantOrderId = strings.TrimSpace(body.MerchantOrderId)
	body.Gateway = normalizeGateway(body.Gateway)
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.SourceCurrency = strings.ToUpper(strings.TrimSpace(body.SourceCurrency))
	body.StatusCallbackUrl = strings.TrimSpace(body.StatusCallbackUrl)
	body.ReturnUrl = strings.TrimSpace(body.ReturnUrl)

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if r.GetShopId() == "" {
		return errors.New("shop_id is required")
	}
	if r.GetMerchantOrderId() == "" {
		return errors.New("merchant_order_id is required")
	}
	if !gateway.IsValidName(r.GetGateway()) {
		return errors.New("gateway is invalid")
	}
	if r.GetAmountCents() <= 0 {
		return errors.New("amount_cents must be > 0")
	}
	if len(r.GetCurrency()) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.GetMaxPayments() < 0 {
		return errors.New("max_payments must be >= 0")
	}
	if r.GetStatusCallbackUrl() == "" {
		return errors.New("status_callback_url is required")
	}
	return nil
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{Id: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{
		ShopId:  strings.TrimSpace(ctx.QueryParam("shop_id")),
		Gateway: normalizeGateway(ctx.QueryParam("gateway")),
		Limit:   100,
		Offset:  0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		parsed, err := status.Parse(statusRaw)
		if err != nil {
			return nil, err
		}
		req.HasStatus = true
		req.Status = parsed
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.GetLimit() <= 0 || r.GetLimit() > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.GetOffset() < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.GetGateway() != "" && !gateway.IsValidName(r.GetGateway()) {
		return errors.New("invalid gateway")
	}
	return nil
}

// normalizeGateway maps either a 4-character gateway id or a canonical name
// to the canonical name, leaving unresolvable input untouched for Validate
// to reject.
func normalizeGateway(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if name, err := gateway.ResolveName(strings.ToLower(trimmed)); err == nil {
		return name
	}
	if name, err := gateway.ResolveName(strings.ToUpper(trimmed)); err == nil {
		return name
	}
	return trimmed
}
