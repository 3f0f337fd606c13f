package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-gateway-hub/app/entity"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/factory"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/gateway"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/monitoring"
	"github.com/vibast-solutions/ms-go-gateway-hub/app/status"
	"github.com/vibast-solutions/ms-go-gateway-hub/config"
)

// reconcileSink is what the scheduler feeds poll results into. In production
// it is the PaymentService; tests slot in a recorder.
type reconcileSink interface {
	Reconcile(ctx context.Context, event *gateway.Event) (ReconcileResult, error)
	ExpirePayment(ctx context.Context, paymentID uint64) (ReconcileResult, error)
}

type pollPaymentRepository interface {
	ListOpenByGateway(ctx context.Context, gateway string) ([]*entity.Payment, error)
}

// TimerState is a point-in-time snapshot of one payment's poll timer,
// exposed for operator introspection.
type TimerState struct {
	PaymentID   uint64     `json:"paymentId"`
	Gateway     string     `json:"gateway"`
	Attempt     int        `json:"attempt"`
	NextCheckAt time.Time  `json:"nextCheckAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// SchedulerStats aggregates scheduler activity since process start.
type SchedulerStats struct {
	ActiveTimers       int            `json:"activeTimers"`
	TimersByGateway    map[string]int `json:"timersByGateway"`
	ChecksPerformed    uint64         `json:"checksPerformed"`
	EventsApplied      uint64         `json:"eventsApplied"`
	ExpiredSynthesized uint64         `json:"expiredSynthesized"`
	CheckFailures      uint64         `json:"checkFailures"`
	Backoff            []string       `json:"backoff"`
	ExpiryHorizon      string         `json:"expiryHorizon"`
}

type pollTimer struct {
	paymentID        uint64
	gateway          string
	gatewayPaymentID string
	expiresAt        *time.Time
	cancel           chan struct{}

	// Guarded by the scheduler mutex.
	attempt int
	nextAt  time.Time
}

// PollingScheduler drives status checks for gateways that cannot be trusted
// to push every outcome. Each watched payment gets its own timer goroutine
// stepping through the backoff ladder until the payment settles, expires, or
// the timer is cancelled.
type PollingScheduler struct {
	sink     reconcileSink
	repo     pollPaymentRepository
	gateways *gateway.Registry
	cfg      config.PollingConfig
	logger   logrus.FieldLogger

	mu      sync.Mutex
	timers  map[uint64]*pollTimer
	stopped bool
	wg      sync.WaitGroup

	checksPerformed    uint64
	eventsApplied      uint64
	expiredSynthesized uint64
	checkFailures      uint64
}

func NewPollingScheduler(sink reconcileSink, repo pollPaymentRepository, gateways *gateway.Registry, cfg config.PollingConfig) *PollingScheduler {
	return &PollingScheduler{
		sink:     sink,
		repo:     repo,
		gateways: gateways,
		cfg:      cfg,
		logger:   factory.NewModuleLogger("polling-scheduler"),
		timers:   make(map[uint64]*pollTimer),
	}
}

// Schedule starts watching a payment. Payments on push-reliable gateways,
// payments already in a terminal status, and payments already watched are all
// no-ops, so callers can invoke this unconditionally after create or restart.
func (p *PollingScheduler) Schedule(payment *entity.Payment) {
	gatewayClient, err := p.gateways.Get(payment.Gateway)
	if err != nil || !gatewayClient.RequiresPolling() {
		return
	}
	if status.IsTerminal(payment.Status) {
		return
	}
	if payment.GatewayPaymentID == nil || *payment.GatewayPaymentID == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if _, exists := p.timers[payment.ID]; exists {
		return
	}

	timer := &pollTimer{
		paymentID:        payment.ID,
		gateway:          payment.Gateway,
		gatewayPaymentID: *payment.GatewayPaymentID,
		expiresAt:        payment.ExpiresAt,
		cancel:           make(chan struct{}),
		attempt:          0,
	}
	timer.nextAt = time.Now().UTC().Add(p.delayFor(timer))
	p.timers[payment.ID] = timer
	monitoring.SetActivePollTimers(len(p.timers))

	p.wg.Add(1)
	go p.run(timer)
}

// Cancel stops the timer for a payment. Safe to call for payments that were
// never scheduled; returns whether a timer was actually removed.
func (p *PollingScheduler) Cancel(paymentID uint64) bool {
	p.mu.Lock()
	timer, ok := p.timers[paymentID]
	if ok {
		delete(p.timers, paymentID)
		monitoring.SetActivePollTimers(len(p.timers))
	}
	p.mu.Unlock()

	if ok {
		close(timer.cancel)
	}
	return ok
}

// Rehydrate rebuilds timers for every open payment on a polled gateway.
// Called once on startup so watches survive a restart.
func (p *PollingScheduler) Rehydrate(ctx context.Context) error {
	for _, gatewayClient := range p.gateways.All() {
		if !gatewayClient.RequiresPolling() {
			continue
		}
		payments, err := p.repo.ListOpenByGateway(ctx, gatewayClient.Name())
		if err != nil {
			return err
		}
		for _, payment := range payments {
			p.Schedule(payment)
		}
		p.logger.WithFields(logrus.Fields{
			"gateway": gatewayClient.Name(),
			"count":   len(payments),
		}).Info("Rehydrated poll timers")
	}
	return nil
}

// Stop cancels all timers and waits for in-flight checks to finish.
func (p *PollingScheduler) Stop() {
	p.mu.Lock()
	p.stopped = true
	timers := make([]*pollTimer, 0, len(p.timers))
	for _, timer := range p.timers {
		timers = append(timers, timer)
	}
	p.timers = make(map[uint64]*pollTimer)
	monitoring.SetActivePollTimers(0)
	p.mu.Unlock()

	for _, timer := range timers {
		close(timer.cancel)
	}
	p.wg.Wait()
}

// Stats returns a snapshot of scheduler activity.
func (p *PollingScheduler) Stats() SchedulerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	byGateway := make(map[string]int)
	for _, timer := range p.timers {
		byGateway[timer.gateway]++
	}
	backoff := make([]string, 0, len(p.cfg.Backoff))
	for _, step := range p.cfg.Backoff {
		backoff = append(backoff, step.String())
	}
	return SchedulerStats{
		ActiveTimers:       len(p.timers),
		TimersByGateway:    byGateway,
		ChecksPerformed:    p.checksPerformed,
		EventsApplied:      p.eventsApplied,
		ExpiredSynthesized: p.expiredSynthesized,
		CheckFailures:      p.checkFailures,
		Backoff:            backoff,
		ExpiryHorizon:      p.cfg.ExpiryHorizon.String(),
	}
}

// Timer returns the state of one payment's timer, or false when none exists.
func (p *PollingScheduler) Timer(paymentID uint64) (TimerState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	timer, ok := p.timers[paymentID]
	if !ok {
		return TimerState{}, false
	}
	return TimerState{
		PaymentID:   timer.paymentID,
		Gateway:     timer.gateway,
		Attempt:     timer.attempt,
		NextCheckAt: timer.nextAt,
		ExpiresAt:   timer.expiresAt,
	}, true
}

func (p *PollingScheduler) run(timer *pollTimer) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		wait := time.Until(timer.nextAt)
		p.mu.Unlock()
		if wait < 0 {
			wait = 0
		}

		clock := time.NewTimer(wait)
		select {
		case <-timer.cancel:
			clock.Stop()
			return
		case <-clock.C:
		}

		if done := p.check(timer); done {
			p.remove(timer.paymentID)
			return
		}

		p.mu.Lock()
		timer.attempt++
		timer.nextAt = time.Now().UTC().Add(p.delayFor(timer))
		p.mu.Unlock()
	}
}

// check performs one status check and reports whether the timer is finished.
func (p *PollingScheduler) check(timer *pollTimer) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.QueryTimeout)
	defer cancel()

	now := time.Now().UTC()
	if timer.expiresAt != nil && !now.Before(*timer.expiresAt) {
		result, err := p.sink.ExpirePayment(ctx, timer.paymentID)
		if err != nil {
			p.countFailure()
			p.logger.WithFields(logrus.Fields{
				"payment_id": timer.paymentID,
				"error":      err.Error(),
			}).Error("Failed to expire overdue payment")
			return false
		}
		if result.Applied {
			p.mu.Lock()
			p.expiredSynthesized++
			p.mu.Unlock()
		}
		// Either we expired it or someone settled it first; done both ways.
		return true
	}

	gatewayClient, err := p.gateways.Get(timer.gateway)
	if err != nil {
		return true
	}

	event, err := gatewayClient.QueryStatus(ctx, timer.gatewayPaymentID)
	p.mu.Lock()
	p.checksPerformed++
	p.mu.Unlock()
	monitoring.ObservePollCheck(timer.gateway, err == nil)

	if err != nil {
		p.countFailure()
		p.logger.WithFields(logrus.Fields{
			"payment_id": timer.paymentID,
			"gateway":    timer.gateway,
			"error":      err.Error(),
		}).Warn("Poll check failed, will retry on next tick")
		return false
	}

	result, err := p.sink.Reconcile(ctx, event)
	if err != nil {
		p.countFailure()
		return false
	}
	if result.Applied {
		p.mu.Lock()
		p.eventsApplied++
		p.mu.Unlock()
	}
	return status.IsTerminal(result.Status)
}

// delayFor picks the wait before the next check: the backoff ladder step for
// the attempt (the last step repeats forever), clamped so the timer fires at
// the expiry deadline instead of overshooting it.
func (p *PollingScheduler) delayFor(timer *pollTimer) time.Duration {
	delay := delayForAttempt(p.cfg.Backoff, timer.attempt)
	if timer.expiresAt != nil {
		untilExpiry := time.Until(*timer.expiresAt)
		if untilExpiry < delay {
			delay = untilExpiry
		}
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func delayForAttempt(backoff []time.Duration, attempt int) time.Duration {
	if len(backoff) == 0 {
		return time.Hour
	}
	if attempt >= len(backoff) {
		return backoff[len(backoff)-1]
	}
	return backoff[attempt]
}

func (p *PollingScheduler) remove(paymentID uint64) {
	p.mu.Lock()
	if _, ok := p.timers[paymentID]; ok {
		delete(p.timers, paymentID)
		monitoring.SetActivePollTimers(len(p.timers))
	}
	p.mu.Unlock()
}

func (p *PollingScheduler) countFailure() {
	p.mu.Lock()
	p.checkFailures++
	p.mu.Unlock()
}
