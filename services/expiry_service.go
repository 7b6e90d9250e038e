package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"payment-bot-service/repository"

	"go.uber.org/zap"
)

// ExpirySweeper periodically transitions stale pending payments to expired.
// A tick that arrives while a sweep is still running is skipped, never
// queued, so sweeps do not overlap.
type ExpirySweeper struct {
	payments repository.PaymentRepository
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	sweeping atomic.Bool
}

func NewExpirySweeper(payments repository.PaymentRepository, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		payments: payments,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. It is a no-op when already running.
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stop, s.done)
	s.logger.Info("Expiry sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the sweep loop and releases the ticker. It is a no-op when
// not running.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
	s.done = nil
	s.logger.Info("Expiry sweeper stopped")
}

func (s *ExpirySweeper) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick performs one sweep. Failures are logged and abandoned; the next
// tick retries. Safe to call concurrently: overlapping calls are dropped.
func (s *ExpirySweeper) Tick(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sweeping.Store(false)

	tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := s.payments.ExpireStale(tickCtx, time.Now().UTC())
	if err != nil {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("Expired payments updated", zap.Int64("count", count))
	}
}
