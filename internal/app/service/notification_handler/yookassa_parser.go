package notification_handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// YooKassaNotification is the webhook body sent by YooKassa.
type YooKassaNotification struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Paid   bool   `json:"paid"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

type YooKassaNotificationParser struct {
	NotificationTime time.Time
	Notification     *YooKassaNotification
}

func (p *YooKassaNotificationParser) GetProvider(ctx context.Context) types.PaymentProvider {
	return types.PaymentProviderYooKassa
}

func (p *YooKassaNotificationParser) GetNotificationTime(ctx context.Context) time.Time {
	return p.NotificationTime
}

func (p *YooKassaNotificationParser) GetEventType(ctx context.Context) string {
	return p.Notification.Event
}

func (p *YooKassaNotificationParser) GetPaymentID(ctx context.Context) string {
	return p.Notification.Object.ID
}

func (p *YooKassaNotificationParser) GetExternalID(ctx context.Context) (int64, error) {
	raw := p.Notification.Object.Metadata["telegram_id"]
	if raw == "" {
		return 0, fmt.Errorf("telegram_id metadata is empty")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (p *YooKassaNotificationParser) GetNotification(ctx context.Context) (*Notification, error) {
	status := strings.TrimSpace(p.Notification.Object.Status)
	if status == "" {
		return nil, fmt.Errorf("payment %s has no status: %w", p.GetPaymentID(ctx), apperr.ErrInvalidPayload)
	}
	n := &Notification{
		Provider:          p.GetProvider(ctx),
		ExternalPaymentID: p.GetPaymentID(ctx),
		Status:            types.PaymentStatus(status),
		EventType:         p.GetEventType(ctx),
		ReceivedAt:        p.NotificationTime,
	}
	if id, err := p.GetExternalID(ctx); err == nil {
		n.ExternalID = id
	}
	if m, err := strconv.Atoi(p.Notification.Object.Metadata["months"]); err == nil {
		n.Months = m
	}
	return n, nil
}

func (p *YooKassaNotificationParser) GetData(ctx context.Context) any {
	return p.Notification
}

// GetYooKassaNotificationParser decodes a YooKassa webhook body.
func GetYooKassaNotificationParser(body []byte, notificationTime time.Time) (NotificationParser, error) {
	if notificationTime.IsZero() {
		notificationTime = time.Now()
	}
	var n YooKassaNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode yookassa notification: %v: %w", err, apperr.ErrInvalidPayload)
	}
	if n.Object.ID == "" {
		return nil, fmt.Errorf("yookassa notification without payment id: %w", apperr.ErrInvalidPayload)
	}
	return &YooKassaNotificationParser{
		NotificationTime: notificationTime.UTC(),
		Notification:     &n,
	}, nil
}
