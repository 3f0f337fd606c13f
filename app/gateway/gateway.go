package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

var (
	ErrMalformedPayload = errors.New("malformed gateway payload")
	ErrInvalidSignature = errors.New("invalid gateway signature")
)

// Event is the canonical form of one gateway callback or poll result. It is
// ephemeral: used to drive a single reconciliation attempt and retained only
// in the webhook audit log.
type Event struct {
	Gateway          string
	GatewayPaymentID string
	NativeStatus     string
	AmountCents      *int64
	RawPayload       []byte
	ReceivedAt       time.Time
}

type SubmitInput struct {
	MerchantOrderID string
	AmountCents     int64
	Currency        string
	SourceCurrency  *string
	CallbackURL     string
	ReturnURL       string
}

type SubmitOutput struct {
	GatewayPaymentID string
	CheckoutURL      string
}

// Gateway is one third-party payment provider behind the hub. Implementations
// are stateless and safe for concurrent use after construction.
type Gateway interface {
	Name() string

	// SubmitPayment registers a payment intent with the gateway and returns
	// the gateway-assigned payment id.
	SubmitPayment(ctx context.Context, input *SubmitInput) (*SubmitOutput, error)

	// VerifyWebhook is the authenticity gate executed before normalization.
	// Gateways without webhook signing return nil.
	VerifyWebhook(payload []byte, signature string) error

	// Normalize parses a gateway-specific webhook payload into a canonical
	// Event. Unparseable payloads fail with ErrMalformedPayload.
	Normalize(payload []byte) (*Event, error)

	// MapStatus translates the gateway's native status vocabulary into a
	// canonical status. Unknown native strings fail with ErrMalformedPayload
	// rather than defaulting.
	MapStatus(native string) (status.Status, error)

	// QueryStatus asks the gateway for the current state of a payment and
	// returns it as a canonical Event.
	QueryStatus(ctx context.Context, gatewayPaymentID string) (*Event, error)

	// RequiresPolling reports whether the gateway lacks reliable push
	// webhooks and must be watched by the polling scheduler.
	RequiresPolling() bool
}

type vocabulary map[string]status.Status

func (v vocabulary) mapStatus(gatewayName, native string) (status.Status, error) {
	s, ok := v[strings.TrimSpace(native)]
	if !ok {
		return "", fmt.Errorf("%w: %s status %q is not in the vocabulary", ErrMalformedPayload, gatewayName, native)
	}
	return s, nil
}

func (v vocabulary) natives() []string {
	items := make([]string, 0, len(v))
	for native := range v {
		items = append(items, native)
	}
	return items
}

// amountToCents converts a gateway-reported decimal amount string ("10.50")
// into minor units. Decimal arithmetic avoids float drift on audit-relevant
// numbers.
func amountToCents(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedPayload, raw)
	}
	cents := amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return &cents, nil
}

func centsToAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req, url)
}

func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doRequest(client, req, url)
}

func doRequest(client *http.Client, req *http.Request, url string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway request failed: url=%s status=%d body=%s", url, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max])
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
