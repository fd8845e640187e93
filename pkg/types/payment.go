package types

type PaymentProvider string

const (
	PaymentProviderStripe   PaymentProvider = "stripe"
	PaymentProviderYooKassa PaymentProvider = "yookassa"
	PaymentProviderInner    PaymentProvider = "inner"
)

// PaymentStatus is stored verbatim; only succeeded and canceled are terminal.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

var TerminalPaymentStatuses = []PaymentStatus{PaymentStatusSucceeded, PaymentStatusCanceled}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusCanceled
}

// PremiumPlan is a purchasable premium package.
type PremiumPlan struct {
	ID       string `json:"id" mapstructure:"id"`
	Months   int    `json:"months" mapstructure:"months"`
	Amount   int64  `json:"amount" mapstructure:"amount"`
	Currency string `json:"currency" mapstructure:"currency"`
	// StripePriceID is optional; an inline price is used when empty.
	StripePriceID string `json:"stripe_price_id" mapstructure:"stripe_price_id"`
}
