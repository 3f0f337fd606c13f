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

var klymeVocabulary = vocabulary{
	"created":    status.Pending,
	"pending":    status.Processing,
	"completed":  status.Paid,
	"rejected":   status.Failed,
	"expired":    status.Expired,
	"refunded":   status.Refund,
	"chargeback": status.Chargeback,
}

// KlymeGateway covers the three regional KLYME deployments (EU, GB, DE). The
// regions share one payload shape and status vocabulary but have separate
// credentials, endpoints, and gateway identities.
type KlymeGateway struct {
	name   string
	cfg    config.GatewayCredentials
	client *http.Client
}

func NewKlymeEUGateway(cfg config.GatewayCredentials) *KlymeGateway {
	return newKlymeGateway(NameKlymeEU, cfg)
}

func NewKlymeGBGateway(cfg config.GatewayCredentials) *KlymeGateway {
	return newKlymeGateway(NameKlymeGB, cfg)
}

func NewKlymeDEGateway(cfg config.GatewayCredentials) *KlymeGateway {
	return newKlymeGateway(NameKlymeDE, cfg)
}

func newKlymeGateway(name string, cfg config.GatewayCredentials) *KlymeGateway {
	return &KlymeGateway{name: name, cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (g *KlymeGateway) Name() string {
	return g.name
}

func (g *KlymeGateway) RequiresPolling() bool {
	return false
}

func (g *KlymeGateway) MapStatus(native string) (status.Status, error) {
	return klymeVocabulary.mapStatus(g.Name(), native)
}

func (g *KlymeGateway) VerifyWebhook(payload []byte, signature string) error {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return errors.New("klyme webhook secret is not configured")
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

type klymeWebhook struct {
	PaymentID string      `json:"payment_id"`
	Status    string      `json:"status"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
}

func (g *KlymeGateway) Normalize(payload []byte) (*Event, error) {
	var body klymeWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(body.PaymentID) == "" {
		return nil, fmt.Errorf("%w: payment_id is missing", ErrMalformedPayload)
	}
	if strings.TrimSpace(body.Status) == "" {
		return nil, fmt.Errorf("%w: status is missing", ErrMalformedPayload)
	}

	amountCents, err := amountToCents(body.Amount.String())
	if err != nil {
		return nil, err
	}

	return &Event{
		Gateway:          g.Name(),
		GatewayPaymentID: strings.TrimSpace(body.PaymentID),
		NativeStatus:     strings.TrimSpace(body.Status),
		AmountCents:      amountCents,
		RawPayload:       payload,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

func (g *KlymeGateway) SubmitPayment(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, errors.New("klyme api key is not configured")
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"amount":       centsToAmount(input.AmountCents),
		"currency":     input.Currency,
		"reference":    input.MerchantOrderID,
		"webhook_url":  input.CallbackURL,
		"redirect_url": input.ReturnURL,
	})
	if err != nil {
		return nil, err
	}

	body, err := postJSON(ctx, g.client, g.cfg.BaseURL+"/v1/payments", map[string]string{
		"Authorization": "Bearer " + g.cfg.APIKey,
	}, reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		PaymentID   string `json:"payment_id"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.PaymentID) == "" {
		return nil, errors.New("klyme payment id missing")
	}

	return &SubmitOutput{
		GatewayPaymentID: strings.TrimSpace(resp.PaymentID),
		CheckoutURL:      strings.TrimSpace(resp.CheckoutURL),
	}, nil
}

func (g *KlymeGateway) QueryStatus(ctx context.Context, gatewayPaymentID string) (*Event, error) {
	body, err := getJSON(ctx, g.client, g.cfg.BaseURL+"/v1/payments/"+url.PathEscape(gatewayPaymentID), map[string]string{
		"Authorization": "Bearer " + g.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp klymeWebhook
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(resp.Status) == "" {
		return nil, fmt.Errorf("%w: status is missing", ErrMalformedPayload)
	}

	amountCents, err := amountToCents(resp.Amount.String())
	if err != nil {
		return nil, err
	}

	return &Event{
		Gateway:          g.Name(),
		GatewayPaymentID: gatewayPaymentID,
		NativeStatus:     strings.TrimSpace(resp.Status),
		AmountCents:      amountCents,
		RawPayload:       body,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}
