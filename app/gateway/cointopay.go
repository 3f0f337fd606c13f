package gateway

import (
	"context"
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

// CoinToPay does not deliver reliable webhooks; the polling scheduler owns
// payments on this gateway and feeds poll results through the same
// reconciliation path.
var coinToPayVocabulary = vocabulary{
	"Paid":          status.Paid,
	"Awaiting Fiat": status.Pending,
	"waiting":       status.Pending,
	"expired":       status.Expired,
	"failed":        status.Failed,
}

type CoinToPayGateway struct {
	cfg    config.GatewayCredentials
	client *http.Client
}

func NewCoinToPayGateway(cfg config.GatewayCredentials) *CoinToPayGateway {
	return &CoinToPayGateway{cfg: cfg, client: newHTTPClient(cfg.HTTPTimeout)}
}

func (g *CoinToPayGateway) Name() string {
	return NameCoinToPay
}

func (g *CoinToPayGateway) RequiresPolling() bool {
	return true
}

func (g *CoinToPayGateway) MapStatus(native string) (status.Status, error) {
	return coinToPayVocabulary.mapStatus(g.Name(), native)
}

// No webhook signing scheme; callbacks are treated as untrusted hints and the
// poll loop remains the authority.
func (g *CoinToPayGateway) VerifyWebhook([]byte, string) error {
	return nil
}

type coinToPayWebhook struct {
	TransactionID string      `json:"TransactionID"`
	Status        string      `json:"Status"`
	Amount        json.Number `json:"Amount"`
}

func (g *CoinToPayGateway) Normalize(payload []byte) (*Event, error) {
	var body coinToPayWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(body.TransactionID) == "" {
		return nil, fmt.Errorf("%w: TransactionID is missing", ErrMalformedPayload)
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
		GatewayPaymentID: strings.TrimSpace(body.TransactionID),
		NativeStatus:     strings.TrimSpace(body.Status),
		AmountCents:      amountCents,
		RawPayload:       payload,
		ReceivedAt:       time.Now().UTC(),
	}, nil
}

func (g *CoinToPayGateway) SubmitPayment(ctx context.Context, input *SubmitInput) (*SubmitOutput, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return nil, errors.New("cointopay api key is not configured")
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"Amount":      centsToAmount(input.AmountCents),
		"Currency":    input.Currency,
		"CustomerRef": input.MerchantOrderID,
	})
	if err != nil {
		return nil, err
	}

	body, err := postJSON(ctx, g.client, g.cfg.BaseURL+"/v2/transactions", map[string]string{
		"Authorization": "Bearer " + g.cfg.APIKey,
	}, reqBody)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TransactionID string `json:"TransactionID"`
		RedirectURL   string `json:"RedirectURL"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.TransactionID) == "" {
		return nil, errors.New("cointopay transaction id missing")
	}

	return &SubmitOutput{
		GatewayPaymentID: strings.TrimSpace(resp.TransactionID),
		CheckoutURL:      strings.TrimSpace(resp.RedirectURL),
	}, nil
}

func (g *CoinToPayGateway) QueryStatus(ctx context.Context, gatewayPaymentID string) (*Event, error) {
	body, err := getJSON(ctx, g.client, g.cfg.BaseURL+"/v2/transactions/"+url.PathEscape(gatewayPaymentID), map[string]string{
		"Authorization": "Bearer " + g.cfg.APIKey,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		TransactionID string      `json:"TransactionID"`
		Status        string      `json:"Status"`
		Amount        json.Number `json:"Amount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(resp.Status) == "" {
		return nil, fmt.Errorf("%w: Status is missing", ErrMalformedPayload)
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
