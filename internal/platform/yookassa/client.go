package yookassa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

var ErrDisabled = errors.New("yookassa api is not configured")

const maxErrorBody = 4 << 10

// Client reads payments back from the YooKassa API. Without shop credentials
// it is disabled.
type Client struct {
	shopID    string
	secretKey string
	baseURL   string
	http      *http.Client
	log       *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.YooKassa.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		shopID:    cfg.YooKassa.ShopID,
		secretKey: cfg.YooKassa.SecretKey,
		baseURL:   strings.TrimRight(cfg.YooKassa.BaseURL, "/"),
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

var Module = fx.Options(
	fx.Provide(New),
)

func (c *Client) Enabled() bool {
	return c != nil && c.shopID != "" && c.secretKey != "" && c.baseURL != ""
}

type paymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Paid   bool   `json:"paid"`
}

// PaymentStatus fetches the current status of a payment. An unknown payment
// is ErrNotFound; transport failures and 5xx answers are ErrUpstreamUnavailable.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (types.PaymentStatus, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return "", fmt.Errorf("build yookassa request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnw("yookassa_request_failed", "payment_id", paymentID, "error", err)
		return "", fmt.Errorf("yookassa get payment: %v: %w", err, apperr.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("yookassa payment %s: %w", paymentID, apperr.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Warnw("yookassa_unavailable", "payment_id", paymentID, "status", resp.StatusCode, "body", string(body))
		return "", fmt.Errorf("yookassa answered %d: %w", resp.StatusCode, apperr.ErrUpstreamUnavailable)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("yookassa answered %d: %s", resp.StatusCode, body)
	}

	var p paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return "", fmt.Errorf("decode yookassa payment: %v: %w", err, apperr.ErrUpstreamUnavailable)
	}
	if p.ID != paymentID || p.Status == "" {
		return "", fmt.Errorf("yookassa returned payment %q with status %q for %q", p.ID, p.Status, paymentID)
	}
	return types.PaymentStatus(p.Status), nil
}
