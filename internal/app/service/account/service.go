package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/tool"
)

// MutateFunc applies pure logic to acc in place and reports whether anything changed.
type MutateFunc func(acc *models.UserAccount) (bool, error)

// Service is the durable user record store. It never caches accounts: every
// call reads the committed row.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

var Module = fx.Options(
	fx.Provide(NewService),
)

// GetOrCreate returns the account for externalID, creating a free-tier one on
// first contact. An existing row always wins a concurrent create.
func (s *Service) GetOrCreate(ctx context.Context, externalID int64, displayName string) (*models.UserAccount, error) {
	if externalID == 0 {
		return nil, fmt.Errorf("external id is required: %w", apperr.ErrInvalidPayload)
	}
	created, err := s.insertIfAbsent(ctx, s.db, externalID, displayName)
	if err != nil {
		return nil, err
	}
	if created {
		logctx.FromCtx(ctx, s.log).Infow("account_created", "external_id", externalID)
	} else if displayName != "" {
		if err := s.db.WithContext(ctx).Model(&models.UserAccount{}).
			Where("external_id = ? AND display_name <> ?", externalID, displayName).
			Update("display_name", displayName).Error; err != nil {
			return nil, fmt.Errorf("failed to refresh display name: %w", err)
		}
	}
	return s.Get(ctx, externalID)
}

// EnsureTx is GetOrCreate inside an open transaction, without touching the display name.
func (s *Service) EnsureTx(ctx context.Context, tx *gorm.DB, externalID int64) (*models.UserAccount, error) {
	if _, err := s.insertIfAbsent(ctx, tx, externalID, ""); err != nil {
		return nil, err
	}
	return s.getWith(ctx, tx, externalID)
}

func (s *Service) insertIfAbsent(ctx context.Context, db *gorm.DB, externalID int64, displayName string) (bool, error) {
	acc := &models.UserAccount{
		ID:               tool.GenerateUUIDV7(),
		ExternalID:       externalID,
		DisplayName:      displayName,
		Allergies:        datatypes.JSONSlice[string]{},
		ExcludedProducts: datatypes.JSONSlice[string]{},
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(acc)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create account: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Get loads the account or fails with apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, externalID int64) (*models.UserAccount, error) {
	return s.getWith(ctx, s.db, externalID)
}

func (s *Service) getWith(ctx context.Context, db *gorm.DB, externalID int64) (*models.UserAccount, error) {
	var acc models.UserAccount
	if err := db.WithContext(ctx).Where("external_id = ?", externalID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %d: %w", externalID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load account %d: %w", externalID, err)
	}
	normalizeTimes(&acc)
	return &acc, nil
}

// FindByPaymentID resolves the account a payment record was created for.
func (s *Service) FindByPaymentID(ctx context.Context, externalPaymentID string) (*models.UserAccount, error) {
	var rec models.PaymentRecord
	if err := s.db.WithContext(ctx).Where("external_payment_id = ?", externalPaymentID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %s: %w", externalPaymentID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", externalPaymentID, err)
	}
	externalID, _ := rec.GrantTarget()
	return s.Get(ctx, externalID)
}

// Mutate applies fn with read-modify-write atomicity, re-reading and retrying
// on concurrent writes.
func (s *Service) Mutate(ctx context.Context, externalID int64, fn MutateFunc) (*models.UserAccount, error) {
	var out *models.UserAccount
	err := apperr.RetryOnConflict(ctx, apperr.DefaultConflictAttempts, func() error {
		var err error
		out, err = s.MutateTx(ctx, s.db, externalID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MutateTx performs a single compare-and-set attempt using tx. It returns
// apperr.ErrConflict when another writer got there first.
func (s *Service) MutateTx(ctx context.Context, tx *gorm.DB, externalID int64, fn MutateFunc) (*models.UserAccount, error) {
	cur, err := s.getWith(ctx, tx, externalID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return cur, nil
	}
	if next.LifetimeUsageCount < cur.LifetimeUsageCount {
		return nil, fmt.Errorf("lifetime usage count cannot decrease (%d -> %d)", cur.LifetimeUsageCount, next.LifetimeUsageCount)
	}

	now := time.Now().UTC()
	res := tx.WithContext(ctx).Model(&models.UserAccount{}).
		Where("external_id = ? AND version = ?", externalID, cur.Version).
		Updates(map[string]any{
			"is_premium":           next.IsPremium,
			"premium_until":        next.PremiumUntil,
			"usage_count_today":    next.UsageCountToday,
			"usage_date":           next.UsageDate,
			"lifetime_usage_count": next.LifetimeUsageCount,
			"version":              cur.Version + 1,
			"updated_at":           now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update account %d: %w", externalID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("account %d version %d: %w", externalID, cur.Version, apperr.ErrConflict)
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	return next, nil
}

// ProfileUpdate is a partial update of user preferences; nil fields are left alone.
type ProfileUpdate struct {
	DisplayName      *string   `json:"display_name"`
	DietPreference   *string   `json:"diet_preference"`
	Allergies        *[]string `json:"allergies"`
	ExcludedProducts *[]string `json:"excluded_products"`
	CalorieGoal      *int      `json:"calorie_goal"`
}

// UpdateProfile applies a partial update; an empty diet or a zero calorie goal clears the field.
func (s *Service) UpdateProfile(ctx context.Context, externalID int64, upd ProfileUpdate) (*models.UserAccount, error) {
	values := map[string]any{}
	if upd.DisplayName != nil {
		values["display_name"] = *upd.DisplayName
	}
	if upd.DietPreference != nil {
		if d := strings.TrimSpace(*upd.DietPreference); d != "" {
			values["diet_preference"] = d
		} else {
			values["diet_preference"] = nil
		}
	}
	if upd.Allergies != nil {
		values["allergies"] = datatypes.JSONSlice[string](NormalizeSet(*upd.Allergies))
	}
	if upd.ExcludedProducts != nil {
		values["excluded_products"] = datatypes.JSONSlice[string](NormalizeSet(*upd.ExcludedProducts))
	}
	if upd.CalorieGoal != nil {
		if *upd.CalorieGoal < 0 {
			return nil, fmt.Errorf("calorie goal must not be negative: %w", apperr.ErrInvalidPayload)
		}
		if *upd.CalorieGoal > 0 {
			values["calorie_goal"] = *upd.CalorieGoal
		} else {
			values["calorie_goal"] = nil
		}
	}
	if len(values) == 0 {
		return s.Get(ctx, externalID)
	}
	values["version"] = gorm.Expr("version + 1")
	values["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&models.UserAccount{}).Where("external_id = ?", externalID).Updates(values)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("account %d: %w", externalID, apperr.ErrNotFound)
	}
	return s.Get(ctx, externalID)
}

// NormalizeSet lower-cases, trims and de-duplicates free-form preference entries.
func NormalizeSet(in []string) []string {
	out := lo.FilterMap(in, func(v string, _ int) (string, bool) {
		v = strings.ToLower(strings.TrimSpace(v))
		return v, v != ""
	})
	return lo.Uniq(out)
}

func normalizeTimes(acc *models.UserAccount) {
	if acc.PremiumUntil != nil {
		t := acc.PremiumUntil.UTC()
		acc.PremiumUntil = &t
	}
	if acc.Allergies == nil {
		acc.Allergies = datatypes.JSONSlice[string]{}
	}
	if acc.ExcludedProducts == nil {
		acc.ExcludedProducts = datatypes.JSONSlice[string]{}
	}
}
