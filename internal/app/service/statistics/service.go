package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Overview is a point-in-time summary of accounts, usage and payments.
type Overview struct {
	At                 time.Time `json:"at"`
	AccountsTotal      int64     `json:"accounts_total"`
	PremiumActive      int64     `json:"premium_active"`
	PremiumFlagExpired int64     `json:"premium_flag_expired"`
	ActionsToday       int64     `json:"actions_today"`
	LifetimeActions    int64     `json:"lifetime_actions"`
	SavedRecipes       int64     `json:"saved_recipes"`

	PaymentsByStatus  map[types.PaymentStatus]int64 `json:"payments_by_status"`
	RevenueByCurrency []LabelValue                  `json:"revenue_by_currency"`
	GrantsBySource    map[types.GrantSource]int64   `json:"grants_by_source"`
}

// Service provides statistics operations
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

var Module = fx.Options(
	fx.Provide(New),
)

// Overview runs the independent aggregate queries concurrently.
func (s *Service) Overview(ctx context.Context, now time.Time) (*Overview, error) {
	now = now.UTC()
	out := &Overview{At: now}
	g, ctx := errgroup.WithContext(ctx)

	accounts := func() *gorm.DB { return s.db.WithContext(ctx).Model(&models.UserAccount{}) }

	g.Go(func() error {
		return accounts().Count(&out.AccountsTotal).Error
	})
	g.Go(func() error {
		return accounts().
			Where("is_premium = ? AND (premium_until IS NULL OR premium_until >= ?)", true, now).
			Count(&out.PremiumActive).Error
	})
	g.Go(func() error {
		// flags the hourly sweep has not cleared yet
		return accounts().
			Where("is_premium = ? AND premium_until < ?", true, now).
			Count(&out.PremiumFlagExpired).Error
	})
	g.Go(func() error {
		return accounts().
			Select("COALESCE(SUM(usage_count_today), 0)").
			Where("usage_date = ?", usage.DateKey(now)).
			Scan(&out.ActionsToday).Error
	})
	g.Go(func() error {
		return accounts().Select("COALESCE(SUM(lifetime_usage_count), 0)").Scan(&out.LifetimeActions).Error
	})
	g.Go(func() error {
		return s.db.WithContext(ctx).Model(&models.SavedRecipe{}).Count(&out.SavedRecipes).Error
	})
	g.Go(func() error {
		var rows []LabelValue
		err := s.db.WithContext(ctx).Model(&models.PaymentRecord{}).
			Select("status AS label, COUNT(*) AS value").
			Group("status").
			Scan(&rows).Error
		out.PaymentsByStatus = lo.SliceToMap(rows, func(r LabelValue) (types.PaymentStatus, int64) {
			return types.PaymentStatus(r.Label), r.Value
		})
		return err
	})
	g.Go(func() error {
		return s.db.WithContext(ctx).Model(&models.PaymentRecord{}).
			Select("currency AS label, COALESCE(SUM(amount), 0) AS value").
			Where("status = ?", types.PaymentStatusSucceeded).
			Group("currency").
			Order("currency").
			Scan(&out.RevenueByCurrency).Error
	})
	g.Go(func() error {
		var rows []LabelValue
		err := s.db.WithContext(ctx).Model(&models.PremiumGrantLog{}).
			Select("source AS label, COUNT(*) AS value").
			Group("source").
			Scan(&rows).Error
		out.GrantsBySource = lo.SliceToMap(rows, func(r LabelValue) (types.GrantSource, int64) {
			return types.GrantSource(r.Label), r.Value
		})
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build statistics overview: %w", err)
	}
	return out, nil
}
