package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/types"
)

func seedCallbackDue(repo *servicePaymentRepo, callbackURL string) *entity.Payment {
	payment := seedPayment(repo, gateway.NameRapyd, "cb-1", status.Paid)
	stored := repo.payments[payment.ID]
	stored.StatusCallbackURL = callbackURL
	stored.CallbackDeliveryStatus = entity.CallbackDeliveryPending
	due := time.Now().UTC().Add(-time.Minute)
	stored.CallbackDeliveryNextAt = &due
	return stored
}

func TestDispatchCallbacksDeliversAndMarksSuccess(t *testing.T) {
	var received *types.PaymentEnvelopeResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body types.PaymentEnvelopeResponse
		_ = json.NewDecoder(r.Body).Decode(&body)
		received = &body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newServicePaymentRepo()
	eventRepo := &serviceEventRepo{}
	svc := newServiceForTest(repo, eventRepo, &serviceAuditRepo{}, nil)
	seedCallbackDue(repo, server.URL)

	if err := svc.RunDispatchCallbacksBatch(context.Background()); err != nil {
		t.Fatalf("dispatch batch failed: %v", err)
	}

	stored := repo.payments[1]
	if stored.CallbackDeliveryStatus != entity.CallbackDeliverySuccess {
		t.Fatalf("expected delivery success, got %d", stored.CallbackDeliveryStatus)
	}
	if stored.CallbackDeliveryNextAt != nil {
		t.Fatal("expected next attempt to be cleared")
	}
	if received == nil || received.Payment == nil || received.Payment.Status != string(status.Paid) {
		t.Fatalf("expected delivered payload with PAID status, got %+v", received)
	}
	if len(eventRepo.byType("callback_dispatched")) != 1 {
		t.Fatal("expected callback_dispatched event")
	}
}

func TestDispatchCallbacksSchedulesRetryOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	repo := newServicePaymentRepo()
	svc := newServiceForTest(repo, &serviceEventRepo{}, &serviceAuditRepo{}, nil)
	seedCallbackDue(repo, server.URL)

	if err := svc.RunDispatchCallbacksBatch(context.Background()); err == nil {
		t.Fatal("expected dispatch error to surface")
	}

	stored := repo.payments[1]
	if stored.CallbackDeliveryStatus != entity.CallbackDeliveryPending {
		t.Fatalf("expected pending for retry, got %d", stored.CallbackDeliveryStatus)
	}
	if stored.CallbackDeliveryAttempts != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", stored.CallbackDeliveryAttempts)
	}
	if stored.CallbackDeliveryNextAt == nil || !stored.CallbackDeliveryNextAt.After(time.Now().UTC()) {
		t.Fatal("expected a future retry time")
	}
	if stored.CallbackDeliveryLastErr == nil {
		t.Fatal("expected the failure to be recorded")
	}
}

func TestDispatchCallbacksGivesUpAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newServicePaymentRepo()
	svc := newServiceForTest(repo, &serviceEventRepo{}, &serviceAuditRepo{}, nil)
	payment := seedCallbackDue(repo, server.URL)
	payment.CallbackDeliveryAttempts = 2 // max is 3 in the test config

	_ = svc.RunDispatchCallbacksBatch(context.Background())

	stored := repo.payments[1]
	if stored.CallbackDeliveryStatus != entity.CallbackDeliveryFailed {
		t.Fatalf("expected delivery failed after max attempts, got %d", stored.CallbackDeliveryStatus)
	}
	if stored.CallbackDeliveryNextAt != nil {
		t.Fatal("expected no further retries")
	}
}

func TestDispatchCallbacksEmptyURLFailsImmediately(t *testing.T) {
	repo := newServicePaymentRepo()
	svc := newServiceForTest(repo, &serviceEventRepo{}, &serviceAuditRepo{}, nil)
	seedCallbackDue(repo, "")

	if err := svc.RunDispatchCallbacksBatch(context.Background()); err != nil {
		t.Fatalf("empty callback url should not error the batch: %v", err)
	}

	stored := repo.payments[1]
	if stored.CallbackDeliveryStatus != entity.CallbackDeliveryFailed {
		t.Fatalf("expected immediate failure, got %d", stored.CallbackDeliveryStatus)
	}
}

func TestExpirePendingBatchClosesOverduePayments(t *testing.T) {
	repo := newServicePaymentRepo()
	eventRepo := &serviceEventRepo{}
	svc := newServiceForTest(repo, eventRepo, &serviceAuditRepo{}, nil)

	overdue := seedPayment(repo, gateway.NameCoinToPay, "tx-1", status.Pending)
	past := time.Now().UTC().Add(-time.Hour)
	repo.payments[overdue.ID].ExpiresAt = &past

	fresh := seedPayment(repo, gateway.NameCoinToPay, "tx-2", status.Pending)
	future := time.Now().UTC().Add(time.Hour)
	repo.payments[fresh.ID].ExpiresAt = &future

	if err := svc.RunExpirePendingBatch(context.Background()); err != nil {
		t.Fatalf("expire batch failed: %v", err)
	}

	if repo.payments[overdue.ID].Status != status.Expired {
		t.Fatalf("expected overdue payment EXPIRED, got %s", repo.payments[overdue.ID].Status)
	}
	if repo.payments[fresh.ID].Status != status.Pending {
		t.Fatalf("fresh payment must stay PENDING, got %s", repo.payments[fresh.ID].Status)
	}
	if len(eventRepo.byType("payment_expired")) != 1 {
		t.Fatal("expected one payment_expired event")
	}
}
