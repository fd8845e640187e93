package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/metrics"
	"github.com/whattoeat/kitchenbot/pkg/tool"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	accounts *account.Service
	metrics  *metrics.Business
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, accounts *account.Service, m *metrics.Business, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, accounts: accounts, metrics: m, log: log}
}

var Module = fx.Options(
	fx.Provide(NewService),
)

// GrantRequest describes one premium grant.
type GrantRequest struct {
	ExternalID int64
	Months     int
	Source     types.GrantSource
	// PaymentID is set when the grant confirms a payment.
	PaymentID  string
	OperatorID string
}

// GrantResult is the account after a grant together with the window it replaced.
type GrantResult struct {
	Account     *models.UserAccount `json:"account"`
	WasActive   bool                `json:"was_active"`
	BeforeUntil *time.Time          `json:"before_until"`
	AfterUntil  *time.Time          `json:"after_until"`
}

// GrantPremium is the manual grant entry point. The account is created if it
// does not exist yet.
func (s *Service) GrantPremium(ctx context.Context, req GrantRequest, now time.Time) (*GrantResult, error) {
	if req.ExternalID == 0 || req.Months < 1 {
		return nil, fmt.Errorf("grant needs an account and at least one month: %w", apperr.ErrInvalidPayload)
	}
	if req.Source == "" {
		req.Source = types.GrantSourceAdmin
	}
	var res *GrantResult
	err := apperr.RetryOnConflict(ctx, apperr.DefaultConflictAttempts, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = s.GrantTx(ctx, tx, req, now)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.PremiumGranted(string(req.Source))
	return res, nil
}

// GrantTx applies a grant inside tx: it ensures the account, extends it with a
// single compare-and-set and appends the grant log. A lost race surfaces as
// apperr.ErrConflict and the caller must retry the whole transaction.
func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, req GrantRequest, now time.Time) (*GrantResult, error) {
	if _, err := s.accounts.EnsureTx(ctx, tx, req.ExternalID); err != nil {
		return nil, err
	}

	res := &GrantResult{}
	acc, err := s.accounts.MutateTx(ctx, tx, req.ExternalID, func(acc *models.UserAccount) (bool, error) {
		if acc.PremiumUntil != nil {
			before := *acc.PremiumUntil
			res.BeforeUntil = &before
		}
		wasActive, err := Grant(acc, req.Months, now, s.cfg.Premium.MonthDays)
		if err != nil {
			return false, fmt.Errorf("%v: %w", err, apperr.ErrInvalidPayload)
		}
		res.WasActive = wasActive
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	res.Account = acc
	res.AfterUntil = acc.PremiumUntil

	entry := &models.PremiumGrantLog{
		ID:          tool.GenerateUUIDV7(),
		ExternalID:  req.ExternalID,
		Source:      req.Source,
		OperatorID:  req.OperatorID,
		Months:      req.Months,
		BeforeUntil: res.BeforeUntil,
		AfterUntil:  res.AfterUntil,
		WasActive:   res.WasActive,
	}
	if req.PaymentID != "" {
		entry.PaymentID = lo.ToPtr(req.PaymentID)
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to write grant log: %w", err)
	}

	logctx.FromCtx(ctx, s.log).Infow("premium_granted",
		"external_id", req.ExternalID,
		"months", req.Months,
		"source", req.Source,
		"payment_id", req.PaymentID,
		"was_active", res.WasActive,
		"premium_until", res.AfterUntil,
	)
	return res, nil
}

// Status reports the premium state of an existing account at now.
func (s *Service) Status(ctx context.Context, externalID int64, now time.Time) (*types.PremiumStatus, error) {
	acc, err := s.accounts.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return StatusOf(acc, now), nil
}

// ListGrants returns the most recent grants for an account, newest first.
func (s *Service) ListGrants(ctx context.Context, externalID int64, limit int) ([]*models.PremiumGrantLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []*models.PremiumGrantLog
	if err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return out, nil
}
