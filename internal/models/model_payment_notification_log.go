package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/whattoeat/kitchenbot/pkg/types"
)

type PaymentNotificationLogStatus string

const (
	PaymentNotificationLogStatusReceived     PaymentNotificationLogStatus = "received"
	PaymentNotificationLogStatusHandled      PaymentNotificationLogStatus = "handled"
	PaymentNotificationLogStatusHandleFailed PaymentNotificationLogStatus = "handle_failed"
)

// PaymentNotificationLog records each webhook delivery twice: once as received
// (raw payload) and once with the reconciliation result.
type PaymentNotificationLog struct {
	ID         string                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Provider   types.PaymentProvider `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	PaymentID  string                `gorm:"column:payment_id;type:varchar(255);index" json:"payment_id"`
	EventType  string                `gorm:"column:event_type;type:varchar(128)" json:"event_type"`
	ExternalID *int64                `gorm:"column:external_id;index" json:"external_id"`
	TraceID    string                `gorm:"column:trace_id;type:varchar(64)" json:"trace_id"`

	NotificationTime time.Time       `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON  `gorm:"column:data;type:jsonb" json:"data"`
	Result           *datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	Status    PaymentNotificationLogStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	CreatedAt time.Time                    `json:"created_at"`
}

func (PaymentNotificationLog) TableName() string { return "payment_notification_log" }
