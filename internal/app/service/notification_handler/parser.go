package notification_handler

import (
	"context"
	"time"

	"github.com/whattoeat/kitchenbot/pkg/types"
)

// Notification is a provider webhook reduced to what reconciliation needs.
type Notification struct {
	Provider          types.PaymentProvider `json:"provider"`
	ExternalPaymentID string                `json:"external_payment_id"`
	Status            types.PaymentStatus   `json:"status"`
	EventType         string                `json:"event_type"`
	// ExternalID and Months echo the provider-side metadata and are only used for
	// auditing; the grant always uses what was stored with the payment record.
	ExternalID int64     `json:"external_id,omitempty"`
	Months     int       `json:"months,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type NotificationParser interface {
	GetProvider(ctx context.Context) types.PaymentProvider
	GetNotificationTime(ctx context.Context) time.Time
	GetEventType(ctx context.Context) string
	GetPaymentID(ctx context.Context) string
	GetExternalID(ctx context.Context) (int64, error)
	// GetNotification returns nil without error for events that carry no
	// payment status change.
	GetNotification(ctx context.Context) (*Notification, error)
	GetData(ctx context.Context) any
}
