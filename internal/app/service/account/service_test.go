package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/internal/platform/db/dbtest"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(dbtest.New(t), zap.NewNop().Sugar())
}

func TestGetOrCreate_CreatesFreeTierAccount(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	acc, err := s.GetOrCreate(ctx, 1001, "Anna")
	require.NoError(t, err)
	require.Equal(t, int64(1001), acc.ExternalID)
	require.Equal(t, "Anna", acc.DisplayName)
	require.False(t, acc.IsPremium)
	require.Nil(t, acc.PremiumUntil)
	require.Empty(t, acc.Allergies)
	require.Empty(t, acc.ExcludedProducts)
	require.Zero(t, acc.UsageCountToday)
	require.Empty(t, acc.UsageDate)
	require.Zero(t, acc.LifetimeUsageCount)
}

func TestGetOrCreate_ExistingRowWinsAndRefreshesName(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, 1001, "Anna")
	require.NoError(t, err)
	_, err = s.Mutate(ctx, 1001, func(acc *models.UserAccount) (bool, error) {
		acc.LifetimeUsageCount = 5
		return true, nil
	})
	require.NoError(t, err)

	second, err := s.GetOrCreate(ctx, 1001, "Anna K.")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Anna K.", second.DisplayName)
	require.Equal(t, int64(5), second.LifetimeUsageCount)
}

func TestGetOrCreate_ConcurrentCallsCreateOneRow(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc, err := s.GetOrCreate(ctx, 77, "racer")
			require.NoError(t, err)
			ids[i] = acc.ID
		}(i)
	}
	wg.Wait()

	require.Len(t, lo.Uniq(ids), 1)
	var count int64
	require.NoError(t, s.db.Model(&models.UserAccount{}).Where("external_id = ?", 77).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.Get(context.Background(), 404)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 5, "Bob")
	require.NoError(t, err)

	acc, err := s.UpdateProfile(ctx, 5, ProfileUpdate{
		DietPreference: lo.ToPtr("keto"),
		Allergies:      &[]string{" Nuts", "nuts", "", "Milk"},
		CalorieGoal:    lo.ToPtr(1800),
	})
	require.NoError(t, err)
	require.Equal(t, "keto", *acc.DietPreference)
	require.Equal(t, datatypes.JSONSlice[string]{"nuts", "milk"}, acc.Allergies)
	require.Equal(t, 1800, *acc.CalorieGoal)
	require.Equal(t, "Bob", acc.DisplayName)

	acc, err = s.UpdateProfile(ctx, 5, ProfileUpdate{DietPreference: lo.ToPtr(""), CalorieGoal: lo.ToPtr(0)})
	require.NoError(t, err)
	require.Nil(t, acc.DietPreference)
	require.Nil(t, acc.CalorieGoal)
	require.Equal(t, datatypes.JSONSlice[string]{"nuts", "milk"}, acc.Allergies)
}

func TestUpdateProfile_NotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.UpdateProfile(context.Background(), 9, ProfileUpdate{DisplayName: lo.ToPtr("x")})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMutateTx_DetectsStaleVersion(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 3, "")
	require.NoError(t, err)

	_, err = s.MutateTx(ctx, s.db, 3, func(acc *models.UserAccount) (bool, error) {
		// a concurrent writer commits between our read and our write
		require.NoError(t, s.db.Model(&models.UserAccount{}).Where("external_id = ?", 3).
			Update("version", acc.Version+1).Error)
		acc.UsageCountToday = 1
		return true, nil
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestMutate_RetriesConflictWithFreshState(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 3, "")
	require.NoError(t, err)

	attempts := 0
	acc, err := s.Mutate(ctx, 3, func(acc *models.UserAccount) (bool, error) {
		attempts++
		if attempts == 1 {
			require.NoError(t, s.db.Model(&models.UserAccount{}).Where("external_id = ?", 3).
				Updates(map[string]any{"version": acc.Version + 1, "lifetime_usage_count": 10}).Error)
		}
		acc.LifetimeUsageCount++
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, int64(11), acc.LifetimeUsageCount)
}

func TestMutate_ConcurrentIncrementsAreNotLost(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 3, "")
	require.NoError(t, err)

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Mutate(ctx, 3, func(acc *models.UserAccount) (bool, error) {
				acc.LifetimeUsageCount++
				return true, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := s.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(n), acc.LifetimeUsageCount)
}

func TestMutate_RejectsLifetimeDecrease(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 3, "")
	require.NoError(t, err)
	_, err = s.Mutate(ctx, 3, func(acc *models.UserAccount) (bool, error) {
		acc.LifetimeUsageCount = 2
		return true, nil
	})
	require.NoError(t, err)

	_, err = s.Mutate(ctx, 3, func(acc *models.UserAccount) (bool, error) {
		acc.LifetimeUsageCount = 1
		return true, nil
	})
	require.Error(t, err)
}

func TestMutate_UnchangedSkipsWrite(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	before, err := s.GetOrCreate(ctx, 3, "")
	require.NoError(t, err)

	after, err := s.Mutate(ctx, 3, func(acc *models.UserAccount) (bool, error) { return false, nil })
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
}

func TestMutate_PersistsPremiumFields(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 3, "")
	require.NoError(t, err)

	until := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	_, err = s.Mutate(ctx, 3, func(acc *models.UserAccount) (bool, error) {
		acc.IsPremium = true
		acc.PremiumUntil = &until
		return true, nil
	})
	require.NoError(t, err)

	acc, err := s.Get(ctx, 3)
	require.NoError(t, err)
	require.True(t, acc.IsPremium)
	require.True(t, until.Equal(*acc.PremiumUntil))
}

func TestFindByPaymentID(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, err := s.GetOrCreate(ctx, 42, "")
	require.NoError(t, err)
	require.NoError(t, s.db.Create(&models.PaymentRecord{
		ID:                "0190f5d4-0000-7000-8000-000000000001",
		ExternalPaymentID: "pay-1",
		ProviderID:        types.PaymentProviderYooKassa,
		OwnerExternalID:   42,
		Amount:            49000,
		Currency:          "RUB",
		Status:            types.PaymentStatusPending,
		RequestedMonths:   1,
	}).Error)

	acc, err := s.FindByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	require.Equal(t, int64(42), acc.ExternalID)

	_, err = s.FindByPaymentID(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNormalizeSet(t *testing.T) {
	require.Equal(t, []string{"gluten", "eggs"}, NormalizeSet([]string{"Gluten ", "EGGS", "gluten", "  "}))
	require.Empty(t, NormalizeSet(nil))
}
