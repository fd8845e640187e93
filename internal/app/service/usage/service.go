package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/metrics"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// Decision answers a gated action request. A denial is not an error: Reason
// tells the front-end whether to upsell.
type Decision struct {
	Kind      types.ActionKind `json:"kind"`
	Permitted bool             `json:"permitted"`
	// Remaining is nil when the account is premium (unlimited).
	Remaining *int             `json:"remaining"`
	Premium   bool             `json:"premium"`
	Reason    types.DenyReason `json:"reason,omitempty"`

	UsageCountToday    int        `json:"usage_count_today"`
	LifetimeUsageCount int64      `json:"lifetime_usage_count"`
	PremiumUntil       *time.Time `json:"premium_until"`
}

type Service struct {
	cfg      *config.Config
	accounts *account.Service
	metrics  *metrics.Business
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, accounts *account.Service, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, accounts: accounts, metrics: m, log: log}
}

var Module = fx.Options(
	fx.Provide(NewService),
)

func (s *Service) limit() int {
	return s.cfg.Quota.FreeActionsPerDay
}

// AttemptGatedAction checks whether kind may run now without charging anything.
// The account is created on first contact.
func (s *Service) AttemptGatedAction(ctx context.Context, externalID int64, kind types.ActionKind, now time.Time) (*Decision, error) {
	if kind == "" {
		kind = types.ActionKindRecipe
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown action kind %q: %w", kind, apperr.ErrInvalidPayload)
	}
	acc, err := s.accounts.GetOrCreate(ctx, externalID, "")
	if err != nil {
		return nil, err
	}

	d := s.decide(acc, kind, now)
	result := "permitted"
	if !d.Permitted {
		result = string(d.Reason)
	}
	s.metrics.GatedDecision(string(kind), result)
	logctx.FromCtx(ctx, s.log).Debugw("gated_action_attempt",
		"external_id", externalID, "kind", kind, "permitted", d.Permitted, "reason", d.Reason)
	return d, nil
}

// RecordGatedActionCompleted charges one unit after the action succeeded.
// Premium-only kinds are not metered and change nothing. For a metered kind the
// decision reports the completed action as permitted; Remaining tells whether
// another one fits today.
func (s *Service) RecordGatedActionCompleted(ctx context.Context, externalID int64, kind types.ActionKind, now time.Time) (*Decision, error) {
	if kind == "" {
		kind = types.ActionKindRecipe
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown action kind %q: %w", kind, apperr.ErrInvalidPayload)
	}

	var acc *models.UserAccount
	var err error
	if metered(kind) {
		acc, err = s.accounts.Mutate(ctx, externalID, func(acc *models.UserAccount) (bool, error) {
			Commit(acc, now)
			return true, nil
		})
	} else {
		acc, err = s.accounts.Get(ctx, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record %s usage: %w", kind, err)
	}
	if metered(kind) {
		s.metrics.UsageCommitted(string(kind))
		logctx.FromCtx(ctx, s.log).Infow("usage_committed",
			"external_id", externalID,
			"kind", kind,
			"usage_count_today", acc.UsageCountToday,
			"lifetime_usage_count", acc.LifetimeUsageCount,
		)
	}
	d := s.decide(acc, kind, now)
	if metered(kind) {
		d.Permitted = true
		d.Reason = ""
	}
	return d, nil
}

func metered(kind types.ActionKind) bool {
	return kind == types.ActionKindRecipe
}

// decide evaluates acc for kind at now.
func (s *Service) decide(acc *models.UserAccount, kind types.ActionKind, now time.Time) *Decision {
	premium := entitlement.IsActive(acc, now)
	d := &Decision{
		Kind:               kind,
		Premium:            premium,
		UsageCountToday:    EffectiveCount(acc, now),
		LifetimeUsageCount: acc.LifetimeUsageCount,
		PremiumUntil:       acc.PremiumUntil,
	}
	switch {
	case premium:
		d.Permitted = true
	case !metered(kind):
		d.Reason = types.DenyReasonPremiumRequired
	default:
		d.Remaining = lo.ToPtr(Remaining(acc, now, s.limit()))
		d.Permitted = CanConsume(acc, now, s.limit())
		if !d.Permitted {
			d.Reason = types.DenyReasonLimitReached
		}
	}
	return d
}
