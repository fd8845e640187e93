package entitlement

import (
	"fmt"
	"time"

	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// MonthDuration is one billed premium month: a fixed 30 days, not a calendar month.
const MonthDuration = time.Duration(config.PremiumMonthDays) * 24 * time.Hour

// IsActive reports whether acc holds premium at now. A set flag with an expiry
// in the past is not active, whether or not the sweep has cleared it yet.
func IsActive(acc *models.UserAccount, now time.Time) bool {
	if acc == nil || !acc.IsPremium {
		return false
	}
	return acc.PremiumUntil == nil || acc.PremiumUntil.After(now)
}

// Grant extends acc by months. An active window is extended from its current
// expiry; otherwise the new window starts at now. A non-expiring grant stays
// non-expiring. It returns whether acc was active before the grant.
func Grant(acc *models.UserAccount, months int, now time.Time, monthDays int) (bool, error) {
	if months < 1 {
		return false, fmt.Errorf("months must be >= 1, got %d", months)
	}
	if monthDays <= 0 {
		return false, fmt.Errorf("month days must be positive, got %d", monthDays)
	}
	span := time.Duration(months*monthDays) * 24 * time.Hour

	wasActive := IsActive(acc, now)
	switch {
	case wasActive && acc.PremiumUntil == nil:
		// nothing to extend
	case wasActive:
		until := acc.PremiumUntil.Add(span).UTC()
		acc.PremiumUntil = &until
	default:
		until := now.Add(span).UTC()
		acc.PremiumUntil = &until
	}
	acc.IsPremium = true
	return wasActive, nil
}

// Expire clears the premium flag of an elapsed grant. It reports whether acc changed.
func Expire(acc *models.UserAccount, now time.Time) bool {
	if acc == nil || !acc.IsPremium || IsActive(acc, now) {
		return false
	}
	acc.IsPremium = false
	return true
}

// StatusOf projects acc into the view returned to callers.
func StatusOf(acc *models.UserAccount, now time.Time) *types.PremiumStatus {
	return &types.PremiumStatus{
		Active:       IsActive(acc, now),
		IsPremium:    acc.IsPremium,
		PremiumUntil: acc.PremiumUntil,
	}
}
