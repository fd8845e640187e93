package models

import (
	"time"

	"github.com/whattoeat/kitchenbot/pkg/types"
)

// PremiumGrantLog records every applied premium grant.
// PaymentID is unique so a payment can never be granted twice.
type PremiumGrantLog struct {
	ID          string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalID  int64             `gorm:"column:external_id;not null;index" json:"external_id"`
	Source      types.GrantSource `gorm:"column:source;type:varchar(32);not null" json:"source"`
	PaymentID   *string           `gorm:"column:payment_id;type:varchar(255);uniqueIndex" json:"payment_id"`
	OperatorID  string            `gorm:"column:operator_id;type:varchar(64)" json:"operator_id,omitempty"`
	Months      int               `gorm:"column:months;not null" json:"months"`
	BeforeUntil *time.Time        `gorm:"column:before_until" json:"before_until"`
	AfterUntil  *time.Time        `gorm:"column:after_until" json:"after_until"`
	WasActive   bool              `gorm:"column:was_active;not null" json:"was_active"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (PremiumGrantLog) TableName() string {
	return "premium_grant_log"
}
