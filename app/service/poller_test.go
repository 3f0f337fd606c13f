package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
	"github.com/vibast-solutions/ms-go-gateway-hub/config"
)

type stubSink struct {
	mu      sync.Mutex
	events  []*gateway.Event
	expired []uint64

	statusFor func(native string) status.Status
}

func (s *stubSink) Reconcile(_ context.Context, event *gateway.Event) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)

	resulting := status.Pending
	if s.statusFor != nil {
		resulting = s.statusFor(event.NativeStatus)
	}
	return ReconcileResult{Applied: true, Status: resulting}, nil
}

func (s *stubSink) ExpirePayment(_ context.Context, paymentID uint64) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = append(s.expired, paymentID)
	return ReconcileResult{Applied: true, Status: status.Expired}, nil
}

func (s *stubSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *stubSink) expiredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expired)
}

type stubOpenRepo struct {
	byGateway map[string][]*entity.Payment
}

func (r *stubOpenRepo) ListOpenByGateway(_ context.Context, gatewayName string) ([]*entity.Payment, error) {
	return r.byGateway[gatewayName], nil
}

func pollRegistry(baseURL string) *gateway.Registry {
	return gateway.NewRegistry(
		gateway.NewRapydGateway(config.GatewayCredentials{WebhookSecret: "x", HTTPTimeout: time.Second}),
		gateway.NewCoinToPayGateway(config.GatewayCredentials{
			APIKey:      "test-key",
			BaseURL:     baseURL,
			HTTPTimeout: time.Second,
		}),
	)
}

func pollConfig(backoff ...time.Duration) config.PollingConfig {
	return config.PollingConfig{
		Backoff:       backoff,
		ExpiryHorizon: 72 * time.Hour,
		QueryTimeout:  time.Second,
	}
}

func polledPayment(id uint64, gatewayName, gatewayPaymentID string, expiresAt *time.Time) *entity.Payment {
	return &entity.Payment{
		ID:               id,
		Gateway:          gatewayName,
		GatewayPaymentID: &gatewayPaymentID,
		Status:           status.Pending,
		ExpiresAt:        expiresAt,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerIgnoresPushGateways(t *testing.T) {
	scheduler := NewPollingScheduler(&stubSink{}, &stubOpenRepo{}, pollRegistry(""), pollConfig(time.Minute))
	defer scheduler.Stop()

	scheduler.Schedule(polledPayment(1, gateway.NameRapyd, "pay-1", nil))

	if stats := scheduler.Stats(); stats.ActiveTimers != 0 {
		t.Fatalf("push gateway payment must not get a timer, got %d", stats.ActiveTimers)
	}
}

func TestSchedulerIgnoresTerminalAndDuplicate(t *testing.T) {
	scheduler := NewPollingScheduler(&stubSink{}, &stubOpenRepo{}, pollRegistry(""), pollConfig(time.Minute))
	defer scheduler.Stop()

	settled := polledPayment(1, gateway.NameCoinToPay, "tx-1", nil)
	settled.Status = status.Paid
	scheduler.Schedule(settled)
	if stats := scheduler.Stats(); stats.ActiveTimers != 0 {
		t.Fatal("terminal payment must not get a timer")
	}

	open := polledPayment(2, gateway.NameCoinToPay, "tx-2", nil)
	scheduler.Schedule(open)
	scheduler.Schedule(open)
	if stats := scheduler.Stats(); stats.ActiveTimers != 1 {
		t.Fatalf("duplicate schedule must be a no-op, got %d timers", stats.ActiveTimers)
	}
}

func TestSchedulerPollsUntilTerminal(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		native := "waiting"
		if calls >= 3 {
			native = "Paid"
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"TransactionID":"tx-1","Status":"` + native + `","Amount":"10.00"}`))
	}))
	defer server.Close()

	sink := &stubSink{statusFor: func(native string) status.Status {
		if native == "Paid" {
			return status.Paid
		}
		return status.Pending
	}}

	scheduler := NewPollingScheduler(sink, &stubOpenRepo{}, pollRegistry(server.URL), pollConfig(5*time.Millisecond, 10*time.Millisecond))
	defer scheduler.Stop()

	scheduler.Schedule(polledPayment(1, gateway.NameCoinToPay, "tx-1", nil))

	waitFor(t, 2*time.Second, func() bool {
		return scheduler.Stats().ActiveTimers == 0
	})

	if sink.eventCount() < 3 {
		t.Fatalf("expected at least 3 poll results, got %d", sink.eventCount())
	}
	stats := scheduler.Stats()
	if stats.ChecksPerformed < 3 {
		t.Fatalf("expected at least 3 checks recorded, got %d", stats.ChecksPerformed)
	}
	if stats.EventsApplied == 0 {
		t.Fatal("expected applied events to be counted")
	}
}

func TestSchedulerSynthesizesExpiryAtHorizon(t *testing.T) {
	sink := &stubSink{}
	scheduler := NewPollingScheduler(sink, &stubOpenRepo{}, pollRegistry(""), pollConfig(time.Minute))
	defer scheduler.Stop()

	past := time.Now().UTC().Add(-time.Minute)
	scheduler.Schedule(polledPayment(7, gateway.NameCoinToPay, "tx-7", &past))

	waitFor(t, 2*time.Second, func() bool {
		return sink.expiredCount() == 1 && scheduler.Stats().ActiveTimers == 0
	})

	if sink.expired[0] != 7 {
		t.Fatalf("expected payment 7 to be expired, got %v", sink.expired)
	}
	if scheduler.Stats().ExpiredSynthesized != 1 {
		t.Fatal("expected expiry synthesis to be counted")
	}
	if sink.eventCount() != 0 {
		t.Fatal("expired payment must not be queried")
	}
}

func TestSchedulerCancel(t *testing.T) {
	scheduler := NewPollingScheduler(&stubSink{}, &stubOpenRepo{}, pollRegistry(""), pollConfig(time.Minute))
	defer scheduler.Stop()

	scheduler.Schedule(polledPayment(3, gateway.NameCoinToPay, "tx-3", nil))

	if !scheduler.Cancel(3) {
		t.Fatal("expected cancel of a live timer to report true")
	}
	if scheduler.Cancel(3) {
		t.Fatal("second cancel must report false")
	}
	if scheduler.Cancel(99) {
		t.Fatal("cancel of an unknown payment must report false")
	}
	if stats := scheduler.Stats(); stats.ActiveTimers != 0 {
		t.Fatalf("expected no timers after cancel, got %d", stats.ActiveTimers)
	}
}

func TestSchedulerTimerIntrospection(t *testing.T) {
	scheduler := NewPollingScheduler(&stubSink{}, &stubOpenRepo{}, pollRegistry(""), pollConfig(time.Minute))
	defer scheduler.Stop()

	scheduler.Schedule(polledPayment(4, gateway.NameCoinToPay, "tx-4", nil))

	state, ok := scheduler.Timer(4)
	if !ok {
		t.Fatal("expected timer state for watched payment")
	}
	if state.Gateway != gateway.NameCoinToPay || state.Attempt != 0 {
		t.Fatalf("unexpected timer state: %+v", state)
	}
	if state.NextCheckAt.Before(time.Now().UTC().Add(30 * time.Second)) {
		t.Fatal("first check should be a full backoff step away")
	}

	if _, ok := scheduler.Timer(99); ok {
		t.Fatal("expected no timer state for unwatched payment")
	}
}

func TestSchedulerRehydrate(t *testing.T) {
	repo := &stubOpenRepo{byGateway: map[string][]*entity.Payment{
		gateway.NameCoinToPay: {
			polledPayment(1, gateway.NameCoinToPay, "tx-1", nil),
			polledPayment(2, gateway.NameCoinToPay, "tx-2", nil),
		},
	}}
	scheduler := NewPollingScheduler(&stubSink{}, repo, pollRegistry(""), pollConfig(time.Minute))
	defer scheduler.Stop()

	if err := scheduler.Rehydrate(context.Background()); err != nil {
		t.Fatalf("rehydrate failed: %v", err)
	}

	stats := scheduler.Stats()
	if stats.ActiveTimers != 2 {
		t.Fatalf("expected 2 rehydrated timers, got %d", stats.ActiveTimers)
	}
	if stats.TimersByGateway[gateway.NameCoinToPay] != 2 {
		t.Fatalf("expected both timers on COINTOPAY, got %+v", stats.TimersByGateway)
	}
}

func TestDelayForAttemptLadder(t *testing.T) {
	backoff := []time.Duration{time.Minute, 2 * time.Minute, 7 * time.Minute, 12 * time.Minute, time.Hour}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{4, time.Hour},
		{5, time.Hour},
		{50, time.Hour},
	}
	for _, tc := range cases {
		if got := delayForAttempt(backoff, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}

	if got := delayForAttempt(nil, 0); got != time.Hour {
		t.Fatalf("empty ladder should fall back to hourly, got %s", got)
	}
}
