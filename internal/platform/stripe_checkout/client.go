package stripe_checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// Metadata keys written on every checkout session.
const (
	MetadataExternalID = "telegram_id"
	MetadataMonths     = "months"
	MetadataPlanID     = "plan_id"
)

var ErrDisabled = errors.New("stripe checkout is not configured")

type CreateParams struct {
	ExternalID     int64
	Plan           *types.PremiumPlan
	Description    string
	IdempotencyKey string
}

type Session struct {
	ID  string
	URL string
}

// Client creates hosted checkout sessions. A Client without a secret key is
// disabled and every call fails with ErrDisabled.
type Client struct {
	cfg config.StripeConfig
	sc  *client.API
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	c := &Client{cfg: cfg.Stripe, log: log}
	if cfg.Stripe.SecretKey != "" {
		c.sc = &client.API{}
		c.sc.Init(cfg.Stripe.SecretKey, nil)
	}
	return c
}

var Module = fx.Options(
	fx.Provide(New),
)

func (c *Client) Enabled() bool { return c != nil && c.sc != nil }

func (c *Client) Provider() types.PaymentProvider { return types.PaymentProviderStripe }

// CreateCheckout opens a one-off payment session for plan.
func (c *Client) CreateCheckout(ctx context.Context, p CreateParams) (*Session, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if p.Plan == nil {
		return nil, fmt.Errorf("plan is required: %w", apperr.ErrInvalidPayload)
	}

	item := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if p.Plan.StripePriceID != "" {
		item.Price = stripe.String(p.Plan.StripePriceID)
	} else {
		item.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(p.Plan.Currency),
			UnitAmount: stripe.Int64(p.Plan.Amount),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(p.Description),
			},
		}
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(strconv.FormatInt(p.ExternalID, 10)),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{item},
		Metadata: map[string]string{
			MetadataExternalID: strconv.FormatInt(p.ExternalID, 10),
			MetadataMonths:     strconv.Itoa(p.Plan.Months),
			MetadataPlanID:     p.Plan.ID,
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	sess, err := c.sc.CheckoutSessions.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < 500 {
			return nil, fmt.Errorf("stripe rejected checkout: %w", err)
		}
		c.log.Errorw("stripe_checkout_failed", "external_id", p.ExternalID, "plan_id", p.Plan.ID, "error", err)
		return nil, fmt.Errorf("stripe checkout: %v: %w", err, apperr.ErrUpstreamUnavailable)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// VerifyEvent checks the Stripe-Signature header and decodes the event. An
// empty secret rejects every event.
func VerifyEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("stripe webhook secret is not configured: %w", apperr.ErrInvalidPayload)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return ev, fmt.Errorf("verify stripe event: %v: %w", err, apperr.ErrInvalidPayload)
	}
	return ev, nil
}

// SessionFromEvent decodes the checkout session carried by a checkout.session.* event.
func SessionFromEvent(ev stripe.Event) (*stripe.CheckoutSession, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("stripe event %s has no data: %w", ev.ID, apperr.ErrInvalidPayload)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %v: %w", err, apperr.ErrInvalidPayload)
	}
	return &sess, nil
}
