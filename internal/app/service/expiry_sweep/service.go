package expiry_sweep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/metrics"
)

// Service clears stored premium flags whose expiry has passed.
type Service struct {
	db      *gorm.DB
	metrics *metrics.Business
	log     *zap.SugaredLogger
}

func NewService(db *gorm.DB, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{db: db, metrics: m, log: log}
}

var Module = fx.Options(
	fx.Provide(NewService, NewScheduler),
	fx.Invoke(registerScheduler),
)

// Run expires every account with premium_until < now in one statement. The
// predicate is evaluated by the database at write time, so a grant committed
// after the sweep started is never overwritten. Bumping version makes any
// in-flight read-modify-write on an expired row retry against fresh state.
func (s *Service) Run(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	now = now.UTC()
	res := s.db.WithContext(ctx).Model(&models.UserAccount{}).
		Where("is_premium = ? AND premium_until IS NOT NULL AND premium_until < ?", true, now).
		Updates(map[string]any{
			"is_premium": false,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		s.metrics.SweepRun("error", 0)
		return 0, fmt.Errorf("expiry sweep failed: %w", res.Error)
	}
	s.metrics.SweepRun("ok", res.RowsAffected)
	s.metrics.ObserveProcess("sweep", "expire", start)
	logctx.FromCtx(ctx, s.log).Infow("expiry_sweep_done", "expired", res.RowsAffected, "at", now)
	return res.RowsAffected, nil
}
