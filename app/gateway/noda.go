package gateway

import (
	"context"
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

var nodaVocabulary = vocabulary{
	"New":        status.Pending,
	"Processing": status.Processing,
	"Done":       status.Paid,
	"Failed":     status.Failed,
	"Expired":    status.Expired,
	"Refunded":   status.Refund,
}

type NodaGateway struct {
	cfg    config.GatewayCredentials
	client *http.Client
}

func NewNodaGateway(cfg config.GatewayCredentials) *NodaGateway {
	return &NodaGateway{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (g *NodaGateway) Name() string {
	return NameNoda
}

func (g *NodaGateway) RequiresPolling() bool {
	return false
}

func (g *NodaGateway) MapStatus(native string) (status.Status, error) {
	return nodaVocabulary.mapStatus(g.Name(), native)
}

type nodaWebhook struct {
	PaymentID string      `json:"PaymentId"`
	Status    string      `json:"Status"`
	Amount    json.Number `json:"Amount"`
	Currency  string      `json:"Currency"`
	Signature string      `json:"Signature"`
}

// VerifyWebhook checks Noda's body signature: sha256 hex over
// "<PaymentId><Status><signing key>".
func (g *NodaGateway) VerifyWebhook(payload []byte, _ string) error {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return errors.New("noda signing key is not configured")
	}

	var body nodaWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(body.Signature) == "" {
		return fmt.Errorf("%w: Signature is missing", ErrInvalidSignature)
	}

	sum := sha256.Sum256([]byte(body.PaymentID + body.Status + g.cfg.WebhookSecret))
	expected := hex.EncodeToString(sum[:])
	if !strings.EqualFold(strings.TrimSpace(body.Signature), expected) {
		return ErrInvalidSignature
	}
	return nil
}

func (g *NodaGateway) Normalize(payload []byte) (*Event, error) {
	var body nodaWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(body.PaymentID) == "" {
		return nil, fmt.Errorf("%w: PaymentId is missing", ErrMalformedPayload)
	}
	if strings.TrimSpace(body.Status) == "" {
		return nil, fmt.Errorf("%w: Status is missing", ErrMalformedPayload)
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

func (g *NodaGateway) SubmitPayment(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, errors.New("noda api key is not configured")
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"amount":      centsToAmount(input.AmountCents),
		"currency":    input.Currency,
		"paymentId":   input.MerchantOrderID,
		"webhookUrl":  input.CallbackURL,
		"returnUrl":   input.ReturnURL,
		"description": "payment " + input.MerchantOrderID,
	})
	if err != nil {
		return nil, err
	}

	body, err := postJSON(ctx, g.client, g.cfg.BaseURL+"/api/payments", map[string]string{
		"x-api-key": g.cfg.APIKey,
	}, reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, errors.New("noda payment id missing")
	}

	return &SubmitOutput{
		GatewayPaymentID: strings.TrimSpace(resp.ID),
		CheckoutURL:      strings.TrimSpace(resp.URL),
	}, nil
}

func (g *NodaGateway) QueryStatus(ctx context.Context, gatewayPaymentID string) (*Event, error) {
	body, err := getJSON(ctx, g.client, g.cfg.BaseURL+"/api/payments/"+url.PathEscape(gatewayPaymentID), map[string]string{
		"x-api-key": g.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID     string      `json:"id"`
		Status string      `json:"status"`
		Amount json.Number `json:"amount"`
	}
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
