package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	notificationlog "github.com/whattoeat/kitchenbot/internal/app/service/notification_log"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/internal/platform/yookassa"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/metrics"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// Notifier is told about every fresh premium activation, after commit.
type Notifier interface {
	PremiumActivated(ctx context.Context, res *ReconciliationResult)
}

// LogNotifier only logs; the chat front-end polls account state.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) PremiumActivated(ctx context.Context, res *ReconciliationResult) {
	logctx.FromCtx(ctx, n.log).Infow("premium_activated_notice",
		"external_id", res.ExternalID, "payment_id", res.PaymentID, "premium_until", res.PremiumUntil)
}

// StatusChecker reads a payment's status back from its provider.
type StatusChecker interface {
	PaymentStatus(ctx context.Context, paymentID string) (types.PaymentStatus, error)
}

type NotificationHandler struct {
	cfg      *config.Config
	db       *gorm.DB
	notifSvc *notificationlog.Service
	grants   *entitlement.Service
	metrics  *metrics.Business
	notifier Notifier
	checker  StatusChecker
	Logger   *zap.SugaredLogger
}

// NewNotificationHandler builds the handler. With a nil checker YooKassa
// notifications are trusted as sent.
func NewNotificationHandler(
	cfg *config.Config,
	db *gorm.DB,
	notif *notificationlog.Service,
	grants *entitlement.Service,
	m *metrics.Business,
	notifier Notifier,
	checker StatusChecker,
	log *zap.SugaredLogger,
) *NotificationHandler {
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &NotificationHandler{
		cfg:      cfg,
		db:       db,
		notifSvc: notif,
		grants:   grants,
		metrics:  m,
		notifier: notifier,
		checker:  checker,
		Logger:   log,
	}
}

func newStatusChecker(c *yookassa.Client, cfg *config.Config, log *zap.SugaredLogger) StatusChecker {
	if !c.Enabled() {
		if cfg.Env == config.EnvProd {
			log.Warnw("yookassa credentials are not set: webhook statuses are not confirmed")
		}
		return nil
	}
	return c
}

var Module = fx.Options(
	fx.Provide(
		NewNotificationHandler,
		newStatusChecker,
		fx.Annotate(NewLogNotifier, fx.As(new(Notifier))),
	),
)

// confirmStatus re-reads a YooKassa success from the API before it can grant.
func (h *NotificationHandler) confirmStatus(ctx context.Context, n *Notification) error {
	if h.checker == nil || n.Provider != types.PaymentProviderYooKassa || n.Status != types.PaymentStatusSucceeded {
		return nil
	}
	status, err := h.checker.PaymentStatus(ctx, n.ExternalPaymentID)
	if err != nil {
		return fmt.Errorf("confirm payment %s: %w", n.ExternalPaymentID, err)
	}
	if status != n.Status {
		logctx.FromCtx(ctx, h.Logger).Warnw("webhook_status_mismatch",
			"payment_id", n.ExternalPaymentID, "notified", n.Status, "actual", status)
		n.Status = status
	}
	return nil
}

// Parse builds the provider-specific parser for a raw webhook body.
func (h *NotificationHandler) Parse(provider types.PaymentProvider, body []byte, signature string, now time.Time) (NotificationParser, error) {
	switch provider {
	case types.PaymentProviderYooKassa:
		return GetYooKassaNotificationParser(body, now)
	case types.PaymentProviderStripe:
		return GetStripeNotificationParser(body, signature, h.cfg.Stripe.WebhookSecret, now)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// HandleNotification parses, audits and reconciles one webhook delivery. The
// returned error is for logging only; the transport must still acknowledge.
func (h *NotificationHandler) HandleNotification(c *gin.Context, provider types.PaymentProvider) (res *ReconciliationResult, resErr error) {
	ctx := c.Request.Context()
	start := time.Now()
	log := logctx.FromGin(c, h.Logger)
	traceID := c.GetString(logctx.TraceIDKey)

	body, err := c.GetRawData()
	if err != nil {
		err = fmt.Errorf("read webhook body: %v: %w", err, apperr.ErrInvalidPayload)
		h.saveRejected(ctx, provider, traceID, body, err)
		return nil, err
	}
	parser, err := h.Parse(provider, body, c.GetHeader("Stripe-Signature"), start)
	if err != nil {
		log.Warnw("webhook_rejected", "provider", provider, "error", err)
		h.saveRejected(ctx, provider, traceID, body, err)
		return nil, err
	}

	var externalID *int64
	if v, e := parser.GetExternalID(ctx); e == nil {
		externalID = lo.ToPtr(v)
	}
	dataBytes, _ := json.Marshal(parser.GetData(ctx))
	paymentID := parser.GetPaymentID(ctx)
	eventType := parser.GetEventType(ctx)
	log.Infow("webhook_received", "provider", provider, "event", eventType, "payment_id", paymentID)

	h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
		Provider:         provider,
		ExternalID:       externalID,
		TraceID:          traceID,
		PaymentID:        paymentID,
		EventType:        eventType,
		NotificationTime: parser.GetNotificationTime(ctx),
		Data:             datatypes.JSON(dataBytes),
		Status:           models.PaymentNotificationLogStatusReceived,
	})

	defer func() {
		resMap := map[string]any{"result": res}
		if resErr != nil {
			resMap["error"] = resErr.Error()
		}
		resBytes, _ := json.Marshal(resMap)
		status := models.PaymentNotificationLogStatusHandled
		if resErr != nil {
			status = models.PaymentNotificationLogStatusHandleFailed
		}
		h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
			Provider:         provider,
			ExternalID:       externalID,
			TraceID:          traceID,
			PaymentID:        paymentID,
			EventType:        eventType,
			NotificationTime: time.Now().UTC(),
			Data:             datatypes.JSON(dataBytes),
			Result:           lo.ToPtr(datatypes.JSON(resBytes)),
			Status:           status,
		})
		h.metrics.Webhook(string(provider), outcome(res, resErr))
		h.metrics.ObserveProcess("webhook", string(provider), start)
	}()

	n, resErr := parser.GetNotification(ctx)
	if resErr != nil {
		log.Warnw("webhook_invalid", "provider", provider, "error", resErr)
		return nil, resErr
	}
	if n == nil {
		log.Debugw("webhook_ignored", "provider", provider, "event", eventType)
		return nil, nil
	}

	if resErr = h.confirmStatus(ctx, n); resErr != nil {
		log.Warnw("webhook_unconfirmed", "provider", provider, "payment_id", paymentID, "error", resErr)
		return nil, resErr
	}

	res, resErr = h.Reconcile(ctx, n, start)
	switch {
	case errors.Is(resErr, apperr.ErrNotFound):
		log.Warnw("webhook_unknown_payment", "provider", provider, "payment_id", paymentID)
	case resErr != nil:
		log.Errorw("webhook_failed", "provider", provider, "payment_id", paymentID, "error", resErr)
	default:
		log.Infow("webhook_handled", "provider", provider, "payment_id", paymentID,
			"status", res.Status, "granted", res.Granted, "already_processed", res.AlreadyProcessed)
	}
	return res, resErr
}

// saveRejected audits a delivery that could not be parsed, keeping the raw body.
func (h *NotificationHandler) saveRejected(ctx context.Context, provider types.PaymentProvider, traceID string, body []byte, err error) {
	h.metrics.Webhook(string(provider), "invalid")
	dataBytes, _ := json.Marshal(map[string]string{"raw": string(body)})
	resBytes, _ := json.Marshal(map[string]string{"error": err.Error()})
	now := time.Now().UTC()
	h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
		Provider:         provider,
		TraceID:          traceID,
		NotificationTime: now,
		Data:             datatypes.JSON(dataBytes),
		Result:           lo.ToPtr(datatypes.JSON(resBytes)),
		Status:           models.PaymentNotificationLogStatusHandleFailed,
	})
}

func outcome(res *ReconciliationResult, err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInvalidPayload):
		return "invalid"
	case err != nil:
		return "error"
	case res == nil:
		return "ignored"
	case res.Granted:
		return "granted"
	case res.AlreadyProcessed:
		return "duplicate"
	case res.Status == types.PaymentStatusCanceled:
		return "canceled"
	default:
		return "updated"
	}
}
