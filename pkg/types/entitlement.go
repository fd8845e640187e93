package types

import "time"

// ActionKind names a gated action requested by the chat front-end.
type ActionKind string

const (
	ActionKindRecipe   ActionKind = "recipe"
	ActionKindMealPlan ActionKind = "meal_plan"
)

func (k ActionKind) Valid() bool {
	return k == ActionKindRecipe || k == ActionKindMealPlan
}

type DenyReason string

const (
	DenyReasonLimitReached    DenyReason = "limit_reached"
	DenyReasonPremiumRequired DenyReason = "premium_required"
)

type GrantSource string

const (
	GrantSourcePayment GrantSource = "payment"
	GrantSourceAdmin   GrantSource = "admin"
)

type PremiumStatus struct {
	Active       bool       `json:"active"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until"`
}
