package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/whattoeat/kitchenbot/pkg/types"
)

// PaymentMetadata is captured when the checkout is created and is the source
// of the grant parameters on confirmation.
type PaymentMetadata struct {
	ExternalID  int64  `json:"external_id"`
	Months      int    `json:"months"`
	PlanID      string `json:"plan_id,omitempty"`
	Description string `json:"description,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// PaymentRecord is one checkout attempt.
type PaymentRecord struct {
	ID                string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalPaymentID string                `gorm:"column:external_payment_id;type:varchar(255);not null;uniqueIndex" json:"external_payment_id"`
	ProviderID        types.PaymentProvider `gorm:"column:provider_id;type:varchar(64);not null" json:"provider_id"`
	// OwnerExternalID references UserAccount.ExternalID by identity, not by foreign key.
	OwnerExternalID int64               `gorm:"column:owner_external_id;not null;index" json:"owner_external_id"`
	Amount          int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency        string              `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	Status          types.PaymentStatus `gorm:"column:status;type:varchar(64);not null;index" json:"status"`
	RequestedMonths int                 `gorm:"column:requested_months;not null" json:"requested_months"`

	Metadata datatypes.JSONType[*PaymentMetadata] `gorm:"column:metadata;type:jsonb" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	// ConfirmedAt is set only on the transition into succeeded.
	ConfirmedAt *time.Time `gorm:"column:confirmed_at;default:null" json:"confirmed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_record"
}

// GrantTarget returns the account identity and months to grant, preferring the
// metadata captured at checkout creation.
func (p *PaymentRecord) GrantTarget() (externalID int64, months int) {
	externalID, months = p.OwnerExternalID, p.RequestedMonths
	if md := p.Metadata.Data(); md != nil {
		if md.ExternalID != 0 {
			externalID = md.ExternalID
		}
		if md.Months > 0 {
			months = md.Months
		}
	}
	return externalID, months
}
