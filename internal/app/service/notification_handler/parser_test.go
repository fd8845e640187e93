package notification_handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

const testStripeSecret = "whsec_test_secret"

const yookassaSucceeded = `{
  "type": "notification",
  "event": "payment.succeeded",
  "object": {
    "id": "2d5e1b1a-000f-5000-9000-1b7c1f3d6a01",
    "status": "succeeded",
    "paid": true,
    "amount": {"value": "1290.00", "currency": "RUB"},
    "metadata": {"telegram_id": "42", "months": "3", "type": "premium_subscription"}
  }
}`

func stripeEvent(eventType, paymentStatus string) []byte {
	return []byte(`{
  "id": "evt_1",
  "object": "event",
  "type": "` + eventType + `",
  "created": 1773144000,
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "payment_status": "` + paymentStatus + `",
    "client_reference_id": "42",
    "metadata": {"telegram_id": "42", "months": "1", "plan_id": "premium_1m"}
  }}
}`)
}

func signed(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestYooKassaParser(t *testing.T) {
	ctx := context.Background()
	p, err := GetYooKassaNotificationParser([]byte(yookassaSucceeded), now)
	require.NoError(t, err)
	require.Equal(t, types.PaymentProviderYooKassa, p.GetProvider(ctx))
	require.Equal(t, "payment.succeeded", p.GetEventType(ctx))

	n, err := p.GetNotification(ctx)
	require.NoError(t, err)
	require.Equal(t, "2d5e1b1a-000f-5000-9000-1b7c1f3d6a01", n.ExternalPaymentID)
	require.Equal(t, types.PaymentStatusSucceeded, n.Status)
	require.Equal(t, int64(42), n.ExternalID)
	require.Equal(t, 3, n.Months)
	require.Equal(t, now, n.ReceivedAt)
}

func TestYooKassaParser_Invalid(t *testing.T) {
	_, err := GetYooKassaNotificationParser([]byte(`{not json`), now)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)

	_, err = GetYooKassaNotificationParser([]byte(`{"event":"payment.succeeded","object":{}}`), now)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)

	p, err := GetYooKassaNotificationParser([]byte(`{"object":{"id":"p1"}}`), now)
	require.NoError(t, err)
	_, err = p.GetNotification(context.Background())
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
	_, err = p.GetExternalID(context.Background())
	require.Error(t, err)
}

func TestStripeParser_StatusMapping(t *testing.T) {
	cases := []struct {
		event, paymentStatus string
		want                 types.PaymentStatus
	}{
		{"checkout.session.completed", "paid", types.PaymentStatusSucceeded},
		{"checkout.session.completed", "unpaid", types.PaymentStatusPending},
		{"checkout.session.async_payment_succeeded", "paid", types.PaymentStatusSucceeded},
		{"checkout.session.async_payment_failed", "unpaid", types.PaymentStatusCanceled},
		{"checkout.session.expired", "unpaid", types.PaymentStatusCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.event+"/"+tc.paymentStatus, func(t *testing.T) {
			payload := stripeEvent(tc.event, tc.paymentStatus)
			p, err := GetStripeNotificationParser(payload, signed(payload), testStripeSecret, now)
			require.NoError(t, err)
			n, err := p.GetNotification(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.want, n.Status)
			require.Equal(t, "cs_test_1", n.ExternalPaymentID)
			require.Equal(t, int64(42), n.ExternalID)
			require.Equal(t, 1, n.Months)
		})
	}
}

func TestStripeParser_IgnoresUnrelatedEvents(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
	p, err := GetStripeNotificationParser(payload, signed(payload), testStripeSecret, now)
	require.NoError(t, err)
	n, err := p.GetNotification(context.Background())
	require.NoError(t, err)
	require.Nil(t, n)
	require.Empty(t, p.GetPaymentID(context.Background()))
}

func TestStripeParser_RejectsBadSignature(t *testing.T) {
	payload := stripeEvent("checkout.session.completed", "paid")
	_, err := GetStripeNotificationParser(payload, "t=1,v1=deadbeef", testStripeSecret, now)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
}

func TestStripeParser_RejectsWithoutSecret(t *testing.T) {
	payload := stripeEvent("checkout.session.completed", "paid")
	_, err := GetStripeNotificationParser(payload, "", "", now)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
	_, err = GetStripeNotificationParser(payload, signed(payload), "", now)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
}

func newWebhookContext(body []byte, header http.Header) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/payment/webhook", bytes.NewReader(body))
	for k, v := range header {
		c.Request.Header[k] = v
	}
	c.Set(logctx.TraceIDKey, "trace-1")
	return c, w
}

func TestHandleNotification_YooKassaAuditedAndGranted(t *testing.T) {
	f := newFixture(t)
	f.pendingPayment(t, "2d5e1b1a-000f-5000-9000-1b7c1f3d6a01", 42, 3)

	c, _ := newWebhookContext([]byte(yookassaSucceeded), nil)
	res, err := f.h.HandleNotification(c, types.PaymentProviderYooKassa)
	require.NoError(t, err)
	require.True(t, res.Granted)

	f.logs.Wait()
	logs, err := f.logs.ListByPaymentID(context.Background(), "2d5e1b1a-000f-5000-9000-1b7c1f3d6a01")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	statuses := []models.PaymentNotificationLogStatus{logs[0].Status, logs[1].Status}
	require.ElementsMatch(t, []models.PaymentNotificationLogStatus{
		models.PaymentNotificationLogStatusReceived,
		models.PaymentNotificationLogStatusHandled,
	}, statuses)
	require.Equal(t, "trace-1", logs[0].TraceID)
	require.Equal(t, int64(42), *logs[0].ExternalID)
}

func TestHandleNotification_StripeSigned(t *testing.T) {
	f := newFixture(t)
	f.pendingPayment(t, "cs_test_1", 42, 1)

	payload := stripeEvent("checkout.session.completed", "paid")
	c, _ := newWebhookContext(payload, http.Header{"Stripe-Signature": []string{signed(payload)}})
	res, err := f.h.HandleNotification(c, types.PaymentProviderStripe)
	require.NoError(t, err)
	require.True(t, res.Granted)
}

func TestHandleNotification_UnknownPaymentIsLoggedAsFailed(t *testing.T) {
	f := newFixture(t)
	c, _ := newWebhookContext([]byte(yookassaSucceeded), nil)
	_, err := f.h.HandleNotification(c, types.PaymentProviderYooKassa)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	f.logs.Wait()
	logs, err := f.logs.ListByPaymentID(context.Background(), "2d5e1b1a-000f-5000-9000-1b7c1f3d6a01")
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestHandleNotification_Malformed(t *testing.T) {
	f := newFixture(t)
	c, _ := newWebhookContext([]byte(`garbage`), nil)
	_, err := f.h.HandleNotification(c, types.PaymentProviderYooKassa)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)

	c, _ = newWebhookContext([]byte(`{}`), nil)
	_, err = f.h.HandleNotification(c, types.PaymentProvider("paypal"))
	require.Error(t, err)

	f.logs.Wait()
	var logs []models.PaymentNotificationLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 2, "rejected deliveries are still audited")
	raw := map[types.PaymentProvider]string{}
	for _, l := range logs {
		require.Equal(t, models.PaymentNotificationLogStatusHandleFailed, l.Status)
		require.Equal(t, "trace-1", l.TraceID)
		require.NotNil(t, l.Result)
		raw[l.Provider] = string(l.Data)
	}
	require.JSONEq(t, `{"raw":"garbage"}`, raw[types.PaymentProviderYooKassa])
	require.JSONEq(t, `{"raw":"{}"}`, raw[types.PaymentProvider("paypal")])
}

func TestHandleNotification_UnsignedStripeIsRejected(t *testing.T) {
	f := newFixture(t)
	f.pendingPayment(t, "cs_test_1", 42, 1)

	payload := stripeEvent("checkout.session.completed", "paid")
	c, _ := newWebhookContext(payload, nil)
	_, err := f.h.HandleNotification(c, types.PaymentProviderStripe)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)

	f.h.cfg.Stripe.WebhookSecret = ""
	c, _ = newWebhookContext(payload, http.Header{"Stripe-Signature": []string{signed(payload)}})
	_, err = f.h.HandleNotification(c, types.PaymentProviderStripe)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)

	require.Equal(t, types.PaymentStatusPending, f.payment(t, "cs_test_1").Status)
	var grants int64
	require.NoError(t, f.db.Model(&models.PremiumGrantLog{}).Count(&grants).Error)
	require.Zero(t, grants)
}

type stubChecker struct {
	status types.PaymentStatus
	err    error
	calls  int
}

func (s *stubChecker) PaymentStatus(context.Context, string) (types.PaymentStatus, error) {
	s.calls++
	return s.status, s.err
}

func TestHandleNotification_YooKassaSuccessIsConfirmed(t *testing.T) {
	const paymentID = "2d5e1b1a-000f-5000-9000-1b7c1f3d6a01"
	cases := []struct {
		name    string
		checker *stubChecker
		granted bool
		errIs   error
	}{
		{"confirmed", &stubChecker{status: types.PaymentStatusSucceeded}, true, nil},
		{"forged", &stubChecker{status: types.PaymentStatusPending}, false, nil},
		{"api down", &stubChecker{err: apperr.ErrUpstreamUnavailable}, false, apperr.ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.h.checker = tc.checker
			f.pendingPayment(t, paymentID, 42, 3)

			c, _ := newWebhookContext([]byte(yookassaSucceeded), nil)
			res, err := f.h.HandleNotification(c, types.PaymentProviderYooKassa)
			require.Equal(t, 1, tc.checker.calls)
			if tc.errIs != nil {
				require.ErrorIs(t, err, tc.errIs)
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.granted, res.Granted)
			}

			rec := f.payment(t, paymentID)
			if tc.granted {
				require.Equal(t, types.PaymentStatusSucceeded, rec.Status)
			} else {
				require.Equal(t, types.PaymentStatusPending, rec.Status)
				require.Empty(t, f.notifier.calls)
			}
		})
	}
}

func TestHandleNotification_CanceledSkipsConfirmation(t *testing.T) {
	f := newFixture(t)
	checker := &stubChecker{err: apperr.ErrUpstreamUnavailable}
	f.h.checker = checker
	f.pendingPayment(t, "pay-cancel", 42, 1)

	body := []byte(`{"event":"payment.canceled","object":{"id":"pay-cancel","status":"canceled","metadata":{"telegram_id":"42"}}}`)
	c, _ := newWebhookContext(body, nil)
	_, err := f.h.HandleNotification(c, types.PaymentProviderYooKassa)
	require.NoError(t, err)
	require.Zero(t, checker.calls)
	require.Equal(t, types.PaymentStatusCanceled, f.payment(t, "pay-cancel").Status)
}
