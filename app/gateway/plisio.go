package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
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

// plisioVocabulary maps Plisio's native invoice statuses onto the canonical
// model. "mismatch" means paid with a different amount; the reconciliation
// core flags the discrepancy but trusts the settlement.
var plisioVocabulary = vocabulary{
	"new":       status.Pending,
	"pending":   status.Processing,
	"completed": status.Paid,
	"mismatch":  status.Paid,
	"expired":   status.Expired,
	"error":     status.Failed,
	"cancelled": status.Failed,
}

type PlisioGateway struct {
	cfg    config.GatewayCredentials
	client *http.Client
}

func NewPlisioGateway(cfg config.GatewayCredentials) *PlisioGateway {
	return &PlisioGateway{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (g *PlisioGateway) Name() string {
	return NamePlisio
}

func (g *PlisioGateway) RequiresPolling() bool {
	return false
}

func (g *PlisioGateway) MapStatus(native string) (status.Status, error) {
	return plisioVocabulary.mapStatus(g.Name(), native)
}

// VerifyWebhook checks Plisio's verify_hash field: an HMAC-SHA1 over the
// payload with the hash field itself removed and keys serialized in sorted
// order.
func (g *PlisioGateway) VerifyWebhook(payload []byte, _ string) error {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return errors.New("plisio webhook secret is not configured")
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	providedHash, _ := fields["verify_hash"].(string)
	if strings.TrimSpace(providedHash) == "" {
		return fmt.Errorf("%w: verify_hash is missing", ErrInvalidSignature)
	}
	delete(fields, "verify_hash")

	// json.Marshal emits map keys in sorted order, which is the canonical
	// serialization Plisio signs.
	canonical, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	mac := hmac.New(sha1.New, []byte(g.cfg.WebhookSecret))
	_, _ = mac.Write(canonical)
	expected := mac.Sum(nil)

	candidate, err := hex.DecodeString(strings.TrimSpace(providedHash))
	if err != nil || !hmac.Equal(candidate, expected) {
		return ErrInvalidSignature
	}
	return nil
}

type plisioWebhook struct {
	TxnID      string `json:"txn_id"`
	Status     string `json:"status"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	SourceRate string `json:"source_rate"`
}

func (g *PlisioGateway) Normalize(payload []byte) (*Event, error) {
	var body plisioWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(body.TxnID) == "" {
		return nil, fmt.Errorf("%w: txn_id is missing", ErrMalformedPayload)
	}
	if strings.TrimSpace(body.Status) == "" {
		return nil, fmt.Errorf("%w: status is missing", ErrMalformedPayload)
	}

	amountCents, err := amountToCents(body.Amount)
	if err != nil {
		return nil, err
	}

	return &Event{
		Gateway:          g.Name(),
		GatewayPaymentID: strings.TrimSpace(body.TxnID),
		NativeStatus:     strings.TrimSpace(body.Status),
		AmountCents:      amountCents,
		RawPayload:       payload,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

func (g *PlisioGateway) SubmitPayment(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, errors.New("plisio api key is not configured")
	}

	values := url.Values{}
	values.Set("api_key", g.cfg.APIKey)
	values.Set("order_number", input.MerchantOrderID)
	values.Set("source_amount", centsToAmount(input.AmountCents))
	values.Set("source_currency", input.Currency)
	values.Set("callback_url", input.CallbackURL)

	body, err := getJSON(ctx, g.client, g.cfg.BaseURL+"/api/v1/invoices/new?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			TxnID      string `json:"txn_id"`
			InvoiceURL string `json:"invoice_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Data.TxnID) == "" {
		return nil, errors.New("plisio invoice id missing")
	}

	return &SubmitOutput{
		GatewayPaymentID: strings.TrimSpace(resp.Data.TxnID),
		CheckoutURL:      strings.TrimSpace(resp.Data.InvoiceURL),
	}, nil
}

func (g *PlisioGateway) QueryStatus(ctx context.Context, gatewayPaymentID string) (*Event, error) {
	body, err := getJSON(ctx, g.client, g.cfg.BaseURL+"/api/v1/operations/"+url.PathEscape(gatewayPaymentID)+"?api_key="+url.QueryEscape(g.cfg.APIKey), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			TxnID  string `json:"txn_id"`
			Status string `json:"status"`
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(resp.Data.Status) == "" {
		return nil, fmt.Errorf("%w: status is missing", ErrMalformedPayload)
	}

	amountCents, err := amountToCents(resp.Data.Amount)
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
