package expiry_sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/metrics"
)

// Runner is one sweep pass.
type Runner interface {
	Run(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler runs the sweep once on start and then on every interval tick. A
// failed or panicking run is logged and the next tick still fires.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	clock    func() time.Time
	metrics  *metrics.Business
	log      *zap.SugaredLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewScheduler(cfg *config.Config, svc *Service, m *metrics.Business, log *zap.SugaredLogger) *Scheduler {
	return newScheduler(svc, cfg.Sweep.Interval, time.Now, m, log)
}

func newScheduler(r Runner, interval time.Duration, clock func() time.Time, m *metrics.Business, log *zap.SugaredLogger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{runner: r, interval: interval, clock: clock, metrics: m, log: log}
}

func registerScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler) {
	if !cfg.Sweep.Enabled {
		s.log.Infow("expiry sweep disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.Stop()
			return nil
		},
	})
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx)
	}()
	s.log.Infow("expiry sweep scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.Infow("expiry sweep scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one isolated pass and never panics.
func (s *Scheduler) RunOnce(ctx context.Context) (expired int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("expiry sweep panicked: %v", r)
			s.metrics.SweepRun("panic", 0)
			s.log.Errorw("expiry_sweep_panic", "panic", r, zap.Stack("stack"))
		}
	}()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	expired, err = s.runner.Run(ctx, s.clock())
	if err != nil {
		s.log.Errorw("expiry_sweep_failed", "error", err)
	}
	return expired, err
}
