package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/config"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

var rapydVocabulary = vocabulary{
	"NEW": status.Pending,
	"ACT": status.Processing,
	"CLO": status.Paid,
	"CAN": status.Failed,
	"ERR": status.Failed,
	"EXP": status.Expired,
	"REF": status.Refund,
	"CBK": status.Chargeback,
}

type RapydGateway struct {
	cfg    config.GatewayCredentials
	client *http.Client
}

func NewRapydGateway(cfg config.GatewayCredentials) *RapydGateway {
	return &RapydGateway{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (g *RapydGateway) Name() string {
	return NameRapyd
}

func (g *RapydGateway) RequiresPolling() bool {
	return false
}

func (g *RapydGateway) MapStatus(native string) (status.Status, error) {
	return rapydVocabulary.mapStatus(g.Name(), native)
}

func (g *RapydGateway) VerifyWebhook(payload []byte, signature string) error {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return errors.New("rapyd webhook secret is not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: signature header is missing", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	_, _ = mac.Write(payload)
	expected := mac.Sum(nil)

	candidate, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(candidate, expected) {
		return ErrInvalidSignature
	}
	return nil
}

type rapydWebhook struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		ID     string      `json:"id"`
		Status string      `json:"status"`
		Amount json.Number `json:"amount"`
	} `json:"data"`
}

func (g *RapydGateway) Normalize(payload []byte) (*Event, error) {
	var body rapydWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(body.Data.ID) == "" {
		return nil, fmt.Errorf("%w: data.id is missing", ErrMalformedPayload)
	}
	if strings.TrimSpace(body.Data.Status) == "" {
		return nil, fmt.Errorf("%w: data.status is missing", ErrMalformedPayload)
	}

	amountCents, err := amountToCents(body.Data.Amount.String())
	if err != nil {
		return nil, err
	}

	return &Event{
		Gateway:          g.Name(),
		GatewayPaymentID: strings.TrimSpace(body.Data.ID),
		NativeStatus:     strings.TrimSpace(body.Data.Status),
		AmountCents:      amountCents,
		RawPayload:       payload,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

func (g *RapydGateway) SubmitPayment(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, errors.New("rapyd api key is not configured")
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"amount":                centsToAmount(input.AmountCents),
		"currency":              input.Currency,
		"merchant_reference_id": input.MerchantOrderID,
		"complete_checkout_url": input.ReturnURL,
	})
	if err != nil {
		return nil, err
	}

	body, err := postJSON(ctx, g.client, g.cfg.BaseURL+"/v1/checkout", map[string]string{
		"access_key": g.cfg.APIKey,
	}, reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			ID          string `json:"id"`
			RedirectURL string `json:"redirect_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Data.ID) == "" {
		return nil, errors.New("rapyd checkout id missing")
	}

	return &SubmitOutput{
		GatewayPaymentID: strings.TrimSpace(resp.Data.ID),
		CheckoutURL:      strings.TrimSpace(resp.Data.RedirectURL),
	}, nil
}

func (g *RapydGateway) QueryStatus(ctx context.Context, gatewayPaymentID string) (*Event, error) {
	body, err := getJSON(ctx, g.client, g.cfg.BaseURL+"/v1/payments/"+url.PathEscape(gatewayPaymentID), map[string]string{
		"access_key": g.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			ID     string      `json:"id"`
			Status string      `json:"status"`
			Amount json.Number `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(resp.Data.Status) == "" {
		return nil, fmt.Errorf("%w: status is missing", ErrMalformedPayload)
	}

	amountCents, err := amountToCents(resp.Data.Amount.String())
	if err != nil {
		return nil, err
	}

	return &Event{
		Gateway:          g.Name(),
		GatewayPaymentID: gatewayPaymentID,
		NativeStatus:     strings.TrimSpace(resp.Data.Status),
		AmountCents:      amountCents,
		RawPayload:       body,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}
