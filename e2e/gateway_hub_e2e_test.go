//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
)

const defaultHTTPBase = "http://localhost:48080"

func httpBase() string {
	if value := strings.TrimSpace(os.Getenv("GATEWAY_HUB_HTTP_BASE")); value != "" {
		return value
	}
	return defaultHTTPBase
}

func rapydWebhookSecret() string {
	if value := strings.TrimSpace(os.Getenv("RAPYD_WEBHOOK_SECRET")); value != "" {
		return value
	}
	return "rapyd-e2e-secret"
}

func adminAPIKey() string {
	if value := strings.TrimSpace(os.Getenv("APP_ADMIN_API_KEY")); value != "" {
		return value
	}
	return "admin-e2e-key"
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	base := httpBase()
	if err := waitForHTTP(base, 30*time.Second); err != nil {
		t.Fatal(err)
	}
	client := newHTTPClient(base)

	orderID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	resp, body := client.doJSON(t, http.MethodPost, "/payments", &types.CreatePaymentRequest{
		ShopId:            "e2e-shop",
		MerchantOrderId:   orderID,
		Gateway:           "rpyd",
		AmountCents:       1000,
		Currency:          "EUR",
		StatusCallbackUrl: "https://shop.example/callback",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create payment: expected 201, got %d body=%s", resp.StatusCode, body)
	}

	var created types.PaymentEnvelopeResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}
	if created.Payment == nil || created.Payment.GatewayPaymentId == "" {
		t.Fatalf("expected gateway payment id, got %+v", created.Payment)
	}

	// Deliver a signed PAID webhook and expect the status to move.
	payload := fmt.Sprintf(`{"id":"wh-e2e","type":"PAYMENT_COMPLETED","data":{"id":"%s","status":"CLO","amount":10}}`, created.Payment.GatewayPaymentId)
	mac := hmac.New(sha256.New, []byte(rapydWebhookSecret()))
	mac.Write([]byte(payload))

	req, _ := http.NewRequest(http.MethodPost, base+"/webhooks/rpyd", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Signature", hex.EncodeToString(mac.Sum(nil)))
	webhookResp, err := client.client.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	webhookResp.Body.Close()
	if webhookResp.StatusCode != http.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", webhookResp.StatusCode)
	}

	resp, body = client.doJSON(t, http.MethodGet, fmt.Sprintf("/payments/%d", created.Payment.Id), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get payment: expected 200, got %d body=%s", resp.StatusCode, body)
	}
	var fetched types.PaymentEnvelopeResponse
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("unmarshal get response: %v", err)
	}
	if fetched.Payment.Status != "PAID" {
		t.Fatalf("expected PAID after webhook, got %s", fetched.Payment.Status)
	}
}

func TestAdminSurfaceRequiresAPIKey(t *testing.T) {
	base := httpBase()
	if err := waitForHTTP(base, 30*time.Second); err != nil {
		t.Fatal(err)
	}
	client := newHTTPClient(base)

	resp, _ := client.doJSON(t, http.MethodGet, "/admin/poller/stats", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected auth failure without api key, got %d", resp.StatusCode)
	}

	resp, body := client.doJSON(t, http.MethodGet, "/admin/poller/stats", nil, map[string]string{"X-API-Key": adminAPIKey()})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d body=%s", resp.StatusCode, body)
	}
}
