package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserAccount is the per-user record keyed by the messaging platform's user id.
type UserAccount struct {
	ID          string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalID  int64  `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	DisplayName string `gorm:"column:display_name;type:varchar(255)" json:"display_name"`

	IsPremium bool `gorm:"column:is_premium;not null;default:false;index:idx_premium_until,priority:1" json:"is_premium"`
	// PremiumUntil is nil for a non-expiring grant.
	PremiumUntil *time.Time `gorm:"column:premium_until;default:null;index:idx_premium_until,priority:2" json:"premium_until"`

	DietPreference   *string                     `gorm:"column:diet_preference;type:varchar(64);default:null" json:"diet_preference"`
	Allergies        datatypes.JSONSlice[string] `gorm:"column:allergies;type:jsonb" json:"allergies"`
	ExcludedProducts datatypes.JSONSlice[string] `gorm:"column:excluded_products;type:jsonb" json:"excluded_products"`
	CalorieGoal      *int                        `gorm:"column:calorie_goal;default:null" json:"calorie_goal"`

	// UsageCountToday only applies while UsageDate equals the current UTC date.
	UsageCountToday int `gorm:"column:usage_count_today;not null;default:0" json:"usage_count_today"`
	// UsageDate is YYYY-MM-DD in UTC; empty when the account never used a gated action.
	UsageDate          string `gorm:"column:usage_date;type:varchar(10);not null;default:''" json:"usage_date"`
	LifetimeUsageCount int64  `gorm:"column:lifetime_usage_count;not null;default:0" json:"lifetime_usage_count"`

	// Version guards read-modify-write cycles; every write bumps it.
	Version int64 `gorm:"column:version;not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserAccount) TableName() string {
	return "user_account"
}

// Clone returns a deep copy so pure logic can be applied without touching the original.
func (a *UserAccount) Clone() *UserAccount {
	if a == nil {
		return nil
	}
	cp := *a
	if a.PremiumUntil != nil {
		t := *a.PremiumUntil
		cp.PremiumUntil = &t
	}
	if a.DietPreference != nil {
		d := *a.DietPreference
		cp.DietPreference = &d
	}
	if a.CalorieGoal != nil {
		g := *a.CalorieGoal
		cp.CalorieGoal = &g
	}
	cp.Allergies = append(datatypes.JSONSlice[string](nil), a.Allergies...)
	cp.ExcludedProducts = append(datatypes.JSONSlice[string](nil), a.ExcludedProducts...)
	return &cp
}
