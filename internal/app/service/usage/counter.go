package usage

import (
	"time"

	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/models"
)

// DateKey is the UTC calendar day a usage counter applies to. Counters reset
// hard at UTC midnight.
func DateKey(now time.Time) string {
	return now.UTC().Format(time.DateOnly)
}

// EffectiveCount is today's usage; a counter stored for another day counts as zero.
func EffectiveCount(acc *models.UserAccount, now time.Time) int {
	if acc.UsageDate != DateKey(now) {
		return 0
	}
	return acc.UsageCountToday
}

// CanConsume reports whether one more metered action is allowed at now.
func CanConsume(acc *models.UserAccount, now time.Time, limit int) bool {
	if entitlement.IsActive(acc, now) {
		return true
	}
	return EffectiveCount(acc, now) < limit
}

// Remaining is the number of free actions left today, never negative.
func Remaining(acc *models.UserAccount, now time.Time, limit int) int {
	return max(limit-EffectiveCount(acc, now), 0)
}

// Commit charges one completed action. Lifetime usage grows regardless of premium.
func Commit(acc *models.UserAccount, now time.Time) {
	if day := DateKey(now); acc.UsageDate != day {
		acc.UsageDate = day
		acc.UsageCountToday = 1
	} else {
		acc.UsageCountToday++
	}
	acc.LifetimeUsageCount++
}
