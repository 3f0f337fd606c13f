package gateway

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vibast-solutions/ms-go-gateway-hub/config"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
)

func allGateways() []Gateway {
	cfg := config.GatewayCredentials{WebhookSecret: "secret"}
	return []Gateway{
		NewPlisioGateway(cfg),
		NewRapydGateway(cfg),
		NewNodaGateway(cfg),
		NewCoinToPayGateway(cfg),
		NewKlymeEUGateway(cfg),
		NewKlymeGBGateway(cfg),
		NewKlymeDEGateway(cfg),
	}
}

func vocabularyFor(name string) vocabulary {
	switch name {
	case NamePlisio:
		return plisioVocabulary
	case NameRapyd:
		return rapydVocabulary
	case NameNoda:
		return nodaVocabulary
	case NameCoinToPay:
		return coinToPayVocabulary
	default:
		return klymeVocabulary
	}
}

func TestEveryNativeStatusMapsToExactlyOneCanonicalStatus(t *testing.T) {
	for _, g := range allGateways() {
		for _, native := range vocabularyFor(g.Name()).natives() {
			mapped, err := g.MapStatus(native)
			if err != nil {
				t.Fatalf("%s: map %q failed: %v", g.Name(), native, err)
			}
			if _, err := status.Parse(string(mapped)); err != nil {
				t.Fatalf("%s: %q mapped to non-canonical %q", g.Name(), native, mapped)
			}
		}
	}
}

func TestUnknownNativeStatusIsMalformedNotDefaulted(t *testing.T) {
	for _, g := range allGateways() {
		if _, err := g.MapStatus("definitely-not-a-status"); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", g.Name(), err)
		}
	}
}

func TestCoinToPayVocabulary(t *testing.T) {
	g := NewCoinToPayGateway(config.GatewayCredentials{})
	expected := map[string]status.Status{
		"Paid":          status.Paid,
		"Awaiting Fiat": status.Pending,
		"waiting":       status.Pending,
		"expired":       status.Expired,
		"failed":        status.Failed,
	}

	for native, want := range expected {
		got, err := g.MapStatus(native)
		if err != nil {
			t.Fatalf("map %q failed: %v", native, err)
		}
		if got != want {
			t.Fatalf("map %q: expected %s, got %s", native, want, got)
		}
	}
}

func TestNormalizeMalformedPayloads(t *testing.T) {
	payloads := [][]byte{
		[]byte("not json"),
		[]byte("{}"),
		[]byte(`{"status":"completed"}`),
	}

	for _, g := range allGateways() {
		for _, payload := range payloads {
			if _, err := g.Normalize(payload); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("%s: expected ErrMalformedPayload for %q, got %v", g.Name(), payload, err)
			}
		}
	}
}

func TestPlisioNormalize(t *testing.T) {
	g := NewPlisioGateway(config.GatewayCredentials{})

	event, err := g.Normalize([]byte(`{"txn_id":"inv-1","status":"completed","amount":"10.50","currency":"EUR"}`))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if event.Gateway != NamePlisio {
		t.Fatalf("expected gateway %s, got %s", NamePlisio, event.Gateway)
	}
	if event.GatewayPaymentID != "inv-1" {
		t.Fatalf("expected gateway payment id inv-1, got %q", event.GatewayPaymentID)
	}
	if event.NativeStatus != "completed" {
		t.Fatalf("expected native status completed, got %q", event.NativeStatus)
	}
	if event.AmountCents == nil || *event.AmountCents != 1050 {
		t.Fatalf("expected 1050 cents, got %v", event.AmountCents)
	}
}

func TestPlisioVerifyWebhook(t *testing.T) {
	g := NewPlisioGateway(config.GatewayCredentials{WebhookSecret: "plisio-secret"})

	fields := map[string]interface{}{
		"txn_id":   "inv-1",
		"status":   "completed",
		"amount":   "10.50",
		"currency": "EUR",
	}
	canonical, _ := json.Marshal(fields)
	mac := hmac.New(sha1.New, []byte("plisio-secret"))
	mac.Write(canonical)
	fields["verify_hash"] = hex.EncodeToString(mac.Sum(nil))
	payload, _ := json.Marshal(fields)

	if err := g.VerifyWebhook(payload, ""); err != nil {
		t.Fatalf("expected valid verify_hash, got %v", err)
	}

	fields["verify_hash"] = "deadbeef"
	tampered, _ := json.Marshal(fields)
	if err := g.VerifyWebhook(tampered, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestRapydVerifyWebhook(t *testing.T) {
	g := NewRapydGateway(config.GatewayCredentials{WebhookSecret: "rapyd-secret"})
	payload := []byte(`{"id":"wh-1","type":"PAYMENT_COMPLETED","data":{"id":"pay-1","status":"CLO","amount":25}}`)

	mac := hmac.New(sha256.New, []byte("rapyd-secret"))
	mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))

	if err := g.VerifyWebhook(payload, signature); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := g.VerifyWebhook(payload, "badhex!"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err := g.VerifyWebhook(payload, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing signature, got %v", err)
	}
}

func TestNodaVerifyWebhook(t *testing.T) {
	g := NewNodaGateway(config.GatewayCredentials{WebhookSecret: "noda-key"})

	sum := sha256.Sum256([]byte("pay-1" + "Done" + "noda-key"))
	payload := []byte(`{"PaymentId":"pay-1","Status":"Done","Amount":100,"Signature":"` + hex.EncodeToString(sum[:]) + `"}`)
	if err := g.VerifyWebhook(payload, ""); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	tampered := []byte(`{"PaymentId":"pay-1","Status":"Failed","Amount":100,"Signature":"` + hex.EncodeToString(sum[:]) + `"}`)
	if err := g.VerifyWebhook(tampered, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestKlymeRegionsAreDistinctGateways(t *testing.T) {
	cfg := config.GatewayCredentials{}
	eu := NewKlymeEUGateway(cfg)
	gb := NewKlymeGBGateway(cfg)
	de := NewKlymeDEGateway(cfg)

	if eu.Name() != NameKlymeEU || gb.Name() != NameKlymeGB || de.Name() != NameKlymeDE {
		t.Fatalf("unexpected region names: %s %s %s", eu.Name(), gb.Name(), de.Name())
	}

	event, err := gb.Normalize([]byte(`{"payment_id":"kp-1","status":"completed","amount":12.34}`))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if event.Gateway != NameKlymeGB {
		t.Fatalf("expected %s, got %s", NameKlymeGB, event.Gateway)
	}
	if event.AmountCents == nil || *event.AmountCents != 1234 {
		t.Fatalf("expected 1234 cents, got %v", event.AmountCents)
	}
}

func TestAmountToCentsRejectsGarbage(t *testing.T) {
	if _, err := amountToCents("12,50"); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	cents, err := amountToCents("")
	if err != nil || cents != nil {
		t.Fatalf("expected nil cents for empty amount, got %v %v", cents, err)
	}
}
