package notification_handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// ReconciliationResult tells the caller what a notification did. Granted is
// true only for the single call that applied the premium grant.
type ReconciliationResult struct {
	PaymentID        string              `json:"payment_id"`
	ExternalID       int64               `json:"external_id,omitempty"`
	Status           types.PaymentStatus `json:"status,omitempty"`
	Granted          bool                `json:"granted"`
	AlreadyProcessed bool                `json:"already_processed"`
	Months           int                 `json:"months,omitempty"`
	PremiumUntil     *time.Time          `json:"premium_until,omitempty"`
}

// Reconcile applies a payment status notification. The status transition and
// the grant commit in one transaction, and the transition only matches rows
// that are not terminal yet, so concurrent duplicate deliveries grant once.
func (h *NotificationHandler) Reconcile(ctx context.Context, n *Notification, now time.Time) (*ReconciliationResult, error) {
	if n == nil || n.ExternalPaymentID == "" || n.Status == "" {
		return &ReconciliationResult{}, fmt.Errorf("notification needs a payment id and a status: %w", apperr.ErrInvalidPayload)
	}
	now = now.UTC()

	var res *ReconciliationResult
	err := apperr.RetryOnConflict(ctx, apperr.DefaultConflictAttempts, func() error {
		res = &ReconciliationResult{PaymentID: n.ExternalPaymentID, Status: n.Status}
		return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return h.reconcileTx(ctx, tx, n, now, res)
		})
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &ReconciliationResult{PaymentID: n.ExternalPaymentID}, err
		}
		return res, err
	}
	if res.Granted {
		h.metrics.PremiumGranted(string(types.GrantSourcePayment))
		h.notifier.PremiumActivated(ctx, res)
	}
	return res, nil
}

func (h *NotificationHandler) reconcileTx(ctx context.Context, tx *gorm.DB, n *Notification, now time.Time, res *ReconciliationResult) error {
	var rec models.PaymentRecord
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_payment_id = ?", n.ExternalPaymentID).
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment %s: %w", n.ExternalPaymentID, apperr.ErrNotFound)
		}
		return fmt.Errorf("failed to load payment %s: %w", n.ExternalPaymentID, err)
	}
	res.ExternalID, res.Months = rec.GrantTarget()

	if rec.Status.Terminal() {
		res.Status = rec.Status
		res.AlreadyProcessed = true
		return nil
	}
	if rec.Status == n.Status {
		return nil
	}

	values := map[string]any{"status": n.Status, "updated_at": now}
	if n.Status == types.PaymentStatusSucceeded {
		values["confirmed_at"] = now
	}
	upd := tx.WithContext(ctx).Model(&models.PaymentRecord{}).
		Where("external_payment_id = ? AND status NOT IN ?", n.ExternalPaymentID, types.TerminalPaymentStatuses).
		Updates(values)
	if upd.Error != nil {
		return fmt.Errorf("failed to update payment %s: %w", n.ExternalPaymentID, upd.Error)
	}
	if upd.RowsAffected == 0 {
		// another delivery settled it after our read
		return fmt.Errorf("payment %s: %w", n.ExternalPaymentID, apperr.ErrConflict)
	}

	if n.Status != types.PaymentStatusSucceeded {
		return nil
	}
	if res.ExternalID == 0 || res.Months < 1 {
		return fmt.Errorf("payment %s has no grant target: %w", n.ExternalPaymentID, apperr.ErrInvalidPayload)
	}
	grant, err := h.grants.GrantTx(ctx, tx, entitlement.GrantRequest{
		ExternalID: res.ExternalID,
		Months:     res.Months,
		Source:     types.GrantSourcePayment,
		PaymentID:  n.ExternalPaymentID,
	}, now)
	if err != nil {
		return err
	}
	res.Granted = true
	res.PremiumUntil = grant.AfterUntil
	logctx.FromCtx(ctx, h.Logger).Infow("payment_confirmed",
		"payment_id", n.ExternalPaymentID,
		"external_id", res.ExternalID,
		"months", res.Months,
		"premium_until", res.PremiumUntil,
	)
	return nil
}
