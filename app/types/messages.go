package types

import "github.com/vibast-solutions/ms-go-gateway-hub/app/status"

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreatePaymentRequest struct {
	ShopId            string `json:"shop_id"`
	MerchantOrderId   string `json:"merchant_order_id"`
	Gateway           string `json:"gateway"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	SourceCurrency    string `json:"source_currency,omitempty"`
	AmountEditable    bool   `json:"amount_editable,omitempty"`
	MaxPayments       int32  `json:"max_payments,omitempty"`
	StatusCallbackUrl string `json:"status_callback_url"`
	ReturnUrl         string `json:"return_url,omitempty"`
}

func (r *CreatePaymentRequest) GetShopId() string {
	if r == nil {
		return ""
	}
	return r.ShopId
}

func (r *CreatePaymentRequest) GetMerchantOrderId() string {
	if r == nil {
		return ""
	}
	return r.MerchantOrderId
}

func (r *CreatePaymentRequest) GetGateway() string {
	if r == nil {
		return ""
	}
	return r.Gateway
}

func (r *CreatePaymentRequest) GetAmountCents() int64 {
	if r == nil {
		return 0
	}
	return r.AmountCents
}

func (r *CreatePaymentRequest) GetCurrency() string {
	if r == nil {
		return ""
	}
	return r.Currency
}

func (r *CreatePaymentRequest) GetSourceCurrency() string {
	if r == nil {
		return ""
	}
	return r.SourceCurrency
}

func (r *CreatePaymentRequest) GetAmountEditable() bool {
	if r == nil {
		return false
	}
	return r.AmountEditable
}

func (r *CreatePaymentRequest) GetMaxPayments() int32 {
	if r == nil {
		return 0
	}
	return r.MaxPayments
}

func (r *CreatePaymentRequest) GetStatusCallbackUrl() string {
	if r == nil {
		return ""
	}
	return r.StatusCallbackUrl
}

func (r *CreatePaymentRequest) GetReturnUrl() string {
	if r == nil {
		return ""
	}
	return r.ReturnUrl
}

type GetPaymentRequest struct {
	Id uint64 `json:"id"`
}

func (r *GetPaymentRequest) GetId() uint64 {
	if r == nil {
		return 0
	}
	return r.Id
}

type ListPaymentsRequest struct {
	ShopId    string        `json:"shop_id"`
	Gateway   string        `json:"gateway"`
	HasStatus bool          `json:"has_status"`
	Status    status.Status `json:"status"`
	Limit     int32         `json:"limit"`
	Offset    int32         `json:"offset"`
}

func (r *ListPaymentsRequest) GetShopId() string {
	if r == nil {
		return ""
	}
	return r.ShopId
}

func (r *ListPaymentsRequest) GetGateway() string {
	if r == nil {
		return ""
	}
	return r.Gateway
}

func (r *ListPaymentsRequest) GetHasStatus() bool {
	if r == nil {
		return false
	}
	return r.HasStatus
}

func (r *ListPaymentsRequest) GetStatus() status.Status {
	if r == nil {
		return ""
	}
	return r.Status
}

func (r *ListPaymentsRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListPaymentsRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

type PaymentResponse struct {
	Id                    uint64  `json:"id"`
	ShopId                string  `json:"shop_id"`
	MerchantOrderId       string  `json:"merchant_order_id"`
	Gateway               string  `json:"gateway"`
	GatewayPaymentId      string  `json:"gateway_payment_id,omitempty"`
	AmountCents           int64   `json:"amount_cents"`
	Currency              string  `json:"currency"`
	SourceCurrency        string  `json:"source_currency,omitempty"`
	AmountEditable        bool    `json:"amount_editable"`
	MaxPayments           int32   `json:"max_payments,omitempty"`
	Status                string  `json:"status"`
	ChargebackAmountCents int64   `json:"chargeback_amount_cents,omitempty"`
	PaidAt                *string `json:"paid_at,omitempty"`
	ExpiresAt             *string `json:"expires_at,omitempty"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}

type PaymentEnvelopeResponse struct {
	Payment *PaymentResponse `json:"payment"`
}

type ListPaymentsResponse struct {
	Payments []*PaymentResponse `json:"payments"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}
