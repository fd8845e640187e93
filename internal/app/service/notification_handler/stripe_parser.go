package notification_handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v78"

	"github.com/whattoeat/kitchenbot/internal/platform/stripe_checkout"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

type StripeNotificationParser struct {
	NotificationTime time.Time
	Event            stripe.Event
	// Session is nil for events that are not about a checkout session.
	Session *stripe.CheckoutSession
}

func (p *StripeNotificationParser) GetProvider(ctx context.Context) types.PaymentProvider {
	return types.PaymentProviderStripe
}

func (p *StripeNotificationParser) GetNotificationTime(ctx context.Context) time.Time {
	return p.NotificationTime
}

func (p *StripeNotificationParser) GetEventType(ctx context.Context) string {
	return string(p.Event.Type)
}

func (p *StripeNotificationParser) GetPaymentID(ctx context.Context) string {
	if p.Session == nil {
		return ""
	}
	return p.Session.ID
}

func (p *StripeNotificationParser) GetExternalID(ctx context.Context) (int64, error) {
	if p.Session == nil {
		return 0, fmt.Errorf("event %s carries no checkout session", p.Event.ID)
	}
	raw := p.Session.Metadata[stripe_checkout.MetadataExternalID]
	if raw == "" {
		raw = p.Session.ClientReferenceID
	}
	if raw == "" {
		return 0, fmt.Errorf("checkout session %s has no account reference", p.Session.ID)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// status maps a checkout session event onto a payment status. Events that do
// not settle a payment map to "".
func (p *StripeNotificationParser) status() types.PaymentStatus {
	switch p.Event.Type {
	case "checkout.session.completed":
		// delayed payment methods complete the session before the money arrives
		if p.Session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return types.PaymentStatusPending
		}
		return types.PaymentStatusSucceeded
	case "checkout.session.async_payment_succeeded":
		return types.PaymentStatusSucceeded
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		return types.PaymentStatusCanceled
	}
	return ""
}

func (p *StripeNotificationParser) GetNotification(ctx context.Context) (*Notification, error) {
	if p.Session == nil {
		return nil, nil
	}
	status := p.status()
	if status == "" {
		return nil, nil
	}
	n := &Notification{
		Provider:          p.GetProvider(ctx),
		ExternalPaymentID: p.Session.ID,
		Status:            status,
		EventType:         p.GetEventType(ctx),
		ReceivedAt:        p.NotificationTime,
	}
	if id, err := p.GetExternalID(ctx); err == nil {
		n.ExternalID = id
	}
	if m, err := strconv.Atoi(p.Session.Metadata[stripe_checkout.MetadataMonths]); err == nil {
		n.Months = m
	}
	return n, nil
}

func (p *StripeNotificationParser) GetData(ctx context.Context) any {
	return p.Event
}

// GetStripeNotificationParser verifies and decodes a Stripe webhook body.
func GetStripeNotificationParser(body []byte, signature, secret string, notificationTime time.Time) (NotificationParser, error) {
	if notificationTime.IsZero() {
		notificationTime = time.Now()
	}
	ev, err := stripe_checkout.VerifyEvent(body, signature, secret)
	if err != nil {
		return nil, err
	}
	p := &StripeNotificationParser{NotificationTime: notificationTime.UTC(), Event: ev}
	if strings.HasPrefix(string(ev.Type), "checkout.session.") {
		sess, err := stripe_checkout.SessionFromEvent(ev)
		if err != nil {
			return nil, err
		}
		if sess.ID == "" {
			return nil, fmt.Errorf("checkout session without id: %w", apperr.ErrInvalidPayload)
		}
		p.Session = sess
	}
	return p, nil
}
