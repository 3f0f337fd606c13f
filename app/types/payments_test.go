package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

func TestNewCreatePaymentRequestFromContextNormalizes(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/payments", bytes.NewBufferString(`{"shop_id":" shop-1 ","merchant_order_id":"order-1","gateway":"plsi","amount_cents":1999,"currency":"eur","status_callback_url":"https://shop.example/callback"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewCreatePaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetShopId() != "shop-1" {
		t.Fatalf("expected trimmed shop id, got %q", parsed.GetShopId())
	}
	if parsed.GetCurrency() != "EUR" {
		t.Fatalf("expected upper-cased currency, got %q", parsed.GetCurrency())
	}
	if parsed.GetGateway() != "PLISIO" {
		t.Fatalf("expected gateway id resolved to canonical name, got %q", parsed.GetGateway())
	}
}

func TestCreatePaymentValidate(t *testing.T) {
	req := &CreatePaymentRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("expected shop_id validation error")
	}

	req = &CreatePaymentRequest{
		ShopId:            "shop-1",
		MerchantOrderId:   "order-1",
		Gateway:           "RAPYD",
		AmountCents:       999,
		Currency:          "EUR",
		StatusCallbackUrl: "https://shop.example/callback",
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Gateway = "UNKNOWN"
	if err := req.Validate(); err == nil {
		t.Fatal("expected gateway validation error")
	}

	req.Gateway = "RAPYD"
	req.AmountCents = 0
	if err := req.Validate(); err == nil {
		t.Fatal("expected amount_cents validation error")
	}
}

func TestNewListPaymentsRequestFromContextAndValidate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments?shop_id=shop-1&gateway=rpyd&status=PAID&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if parsed.GetGateway() != "RAPYD" {
		t.Fatalf("expected gateway resolved to RAPYD, got %q", parsed.GetGateway())
	}
	if !parsed.GetHasStatus() || parsed.GetStatus() != status.Paid {
		t.Fatalf("expected status filter PAID, got %v", parsed.GetStatus())
	}
	if parsed.GetLimit() != 10 || parsed.GetOffset() != 5 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", parsed.GetLimit(), parsed.GetOffset())
	}
}

func TestNewListPaymentsRequestRejectsBadStatus(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments?status=NOPE", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if _, err := NewListPaymentsRequestFromContext(ctx); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestListPaymentsValidateLimitBounds(t *testing.T) {
	req := &ListPaymentsRequest{Limit: 501}
	if err := req.Validate(); err == nil {
		t.Fatal("expected limit validation error")
	}

	req = &ListPaymentsRequest{Limit: 0}
	if err := req.Validate(); err != nil {
		t.Fatalf("zero limit should default, got %v", err)
	}
	if req.Limit != 100 {
		t.Fatalf("expected defaulted limit 100, got %d", req.Limit)
	}

	req = &ListPaymentsRequest{Limit: 10, Offset: -1}
	if err := req.Validate(); err == nil {
		t.Fatal("expected offset validation error")
	}
}

func TestGetPaymentRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments/12", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("12")

	parsed, err := NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetId() != 12 {
		t.Fatalf("expected id 12, got %d", parsed.GetId())
	}

	ctx.SetParamValues("abc")
	if _, err := NewGetPaymentRequestFromContext(ctx); err == nil {
		t.Fatal("expected parse error for non-numeric id")
	}
}
