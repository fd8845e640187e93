package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/internal/platform/stripe_checkout"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/tool"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// Checkout creates hosted payment pages with a provider.
type Checkout interface {
	Provider() types.PaymentProvider
	CreateCheckout(ctx context.Context, p stripe_checkout.CreateParams) (*stripe_checkout.Session, error)
}

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	checkout Checkout
	accounts *account.Service
	log      *zap.SugaredLogger
}

func NewService(cfg *config.Config, db *gorm.DB, checkout Checkout, accounts *account.Service, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, db: db, checkout: checkout, accounts: accounts, log: log}
}

var Module = fx.Options(
	fx.Provide(
		NewService,
		func(c *stripe_checkout.Client) Checkout { return c },
	),
)

type CheckoutResult struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
	PlanID      string `json:"plan_id"`
	Months      int    `json:"months"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// CreateCheckout opens a checkout session for planID and records it as pending.
func (s *Service) CreateCheckout(ctx context.Context, externalID int64, planID string) (*CheckoutResult, error) {
	plan := s.cfg.GetPlanByID(planID)
	if plan == nil {
		return nil, fmt.Errorf("unknown plan %q: %w", planID, apperr.ErrInvalidPayload)
	}
	if _, err := s.accounts.Get(ctx, externalID); err != nil {
		return nil, err
	}

	description := fmt.Sprintf("WhatToEat Premium, %d mo.", plan.Months)
	sess, err := s.checkout.CreateCheckout(ctx, stripe_checkout.CreateParams{
		ExternalID:     externalID,
		Plan:           plan,
		Description:    description,
		IdempotencyKey: tool.GenerateIdempotencyKey("checkout"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	if _, err := s.RegisterPending(ctx, PendingPayment{
		Provider:          s.checkout.Provider(),
		ExternalPaymentID: sess.ID,
		ExternalID:        externalID,
		Months:            plan.Months,
		PlanID:            plan.ID,
		Amount:            plan.Amount,
		Currency:          plan.Currency,
		Description:       description,
		CheckoutURL:       sess.URL,
	}); err != nil {
		return nil, err
	}
	return &CheckoutResult{
		PaymentID:   sess.ID,
		CheckoutURL: sess.URL,
		PlanID:      plan.ID,
		Months:      plan.Months,
		Amount:      plan.Amount,
		Currency:    plan.Currency,
	}, nil
}

// PendingPayment describes a checkout created by a collaborator.
type PendingPayment struct {
	Provider          types.PaymentProvider `json:"provider" binding:"required"`
	ExternalPaymentID string                `json:"external_payment_id" binding:"required"`
	ExternalID        int64                 `json:"external_id" binding:"required"`
	Months            int                   `json:"months" binding:"required,min=1"`
	PlanID            string                `json:"plan_id"`
	Amount            int64                 `json:"amount"`
	Currency          string                `json:"currency"`
	Description       string                `json:"description"`
	CheckoutURL       string                `json:"checkout_url"`
}

// RegisterPending stores a pending payment. Registering the same payment id
// again returns the stored record unchanged.
func (s *Service) RegisterPending(ctx context.Context, p PendingPayment) (*models.PaymentRecord, error) {
	if p.ExternalPaymentID == "" || p.ExternalID == 0 || p.Months < 1 {
		return nil, fmt.Errorf("payment id, account and months are required: %w", apperr.ErrInvalidPayload)
	}
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	rec := &models.PaymentRecord{
		ID:                tool.GenerateUUIDV7(),
		ExternalPaymentID: p.ExternalPaymentID,
		ProviderID:        p.Provider,
		OwnerExternalID:   p.ExternalID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            types.PaymentStatusPending,
		RequestedMonths:   p.Months,
		Metadata: datatypes.NewJSONType(&models.PaymentMetadata{
			ExternalID:  p.ExternalID,
			Months:      p.Months,
			PlanID:      p.PlanID,
			Description: p.Description,
			CheckoutURL: p.CheckoutURL,
		}),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_payment_id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		logctx.FromCtx(ctx, s.log).Infow("payment_pending",
			"payment_id", p.ExternalPaymentID, "external_id", p.ExternalID, "months", p.Months, "provider", p.Provider)
	}
	return s.Get(ctx, p.ExternalPaymentID)
}

func (s *Service) Get(ctx context.Context, externalPaymentID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	if err := s.db.WithContext(ctx).Where("external_payment_id = ?", externalPaymentID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %s: %w", externalPaymentID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load payment %s: %w", externalPaymentID, err)
	}
	return &rec, nil
}

// Scan payment request/response.
type ScanPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanPaymentsResponse struct {
	Items []*models.PaymentRecord `json:"items"`
	Total int64                   `json:"total"`
}

var scannableColumns = []string{
	"external_payment_id", "provider_id", "owner_external_id", "amount",
	"currency", "status", "requested_months", "created_at", "confirmed_at",
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan lists payments for admin pages.
func (s *Service) Scan(ctx context.Context, req *ScanPaymentsRequest) (*ScanPaymentsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request: %w", apperr.ErrInvalidPayload)
	}
	if req.Size <= 0 || req.Size > 200 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	for _, f := range req.Filters {
		if err := f.Validate(scannableColumns); err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperr.ErrInvalidPayload)
		}
	}
	if req.SortBy == "" {
		req.SortBy = "created_at"
	}
	if !lo.Contains(scannableColumns, req.SortBy) {
		return nil, fmt.Errorf("cannot sort on %q: %w", req.SortBy, apperr.ErrInvalidPayload)
	}

	tx := s.db.WithContext(ctx).Model(&models.PaymentRecord{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []*models.PaymentRecord
	q := tx.Limit(req.Size).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return &ScanPaymentsResponse{Items: rows, Total: total}, nil
}
