package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mw "github.com/whattoeat/kitchenbot/internal/app/api/middleware"
	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/expiry_sweep"
	"github.com/whattoeat/kitchenbot/internal/app/service/kitchen"
	nh "github.com/whattoeat/kitchenbot/internal/app/service/notification_handler"
	notificationlog "github.com/whattoeat/kitchenbot/internal/app/service/notification_log"
	"github.com/whattoeat/kitchenbot/internal/app/service/payment"
	"github.com/whattoeat/kitchenbot/internal/app/service/statistics"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/platform/db/dbtest"
	"github.com/whattoeat/kitchenbot/internal/platform/llm"
	"github.com/whattoeat/kitchenbot/internal/platform/stripe_checkout"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/response"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

const jwtSecret = "server-test-secret"

type noCheckout struct{}

func (noCheckout) Provider() types.PaymentProvider { return types.PaymentProviderStripe }
func (noCheckout) CreateCheckout(context.Context, stripe_checkout.CreateParams) (*stripe_checkout.Session, error) {
	return nil, errors.New("checkout disabled in tests")
}

type noGenerator struct{}

func (noGenerator) ExtractProducts(context.Context, string) ([]string, error) {
	return []string{"egg"}, nil
}
func (noGenerator) ExtractProductsFromImage(context.Context, []byte, string) ([]string, error) {
	return nil, llm.ErrDisabled
}
func (noGenerator) Transcribe(context.Context, []byte, string) (string, error) {
	return "", llm.ErrDisabled
}
func (noGenerator) GenerateRecipes(context.Context, llm.RecipeRequest) ([]llm.Recipe, error) {
	return []llm.Recipe{{Title: "Omelette", Steps: []llm.Step{{Step: 1, Text: "Whisk"}}}}, nil
}
func (noGenerator) GenerateMealPlan(context.Context, llm.MealPlanRequest) (*llm.MealPlan, error) {
	return nil, llm.ErrDisabled
}

type testServer struct {
	r     *gin.Engine
	deps  Deps
	bot   string
	admin string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Quota:   config.QuotaConfig{FreeActionsPerDay: 3},
		Premium: config.PremiumConfig{MonthDays: config.PremiumMonthDays, Plans: config.DefaultPlans()},
		Auth:    config.AuthConfig{JWTSecret: jwtSecret},
	}
	accounts := account.NewService(db, log)
	use := usage.NewService(cfg, accounts, nil, log)
	grants := entitlement.NewService(cfg, db, accounts, nil, log)
	notifs := notificationlog.New(db, log)
	sweep := expiry_sweep.NewService(db, nil, log)
	d := Deps{
		Log:           log,
		Cfg:           cfg,
		DB:            db,
		Accounts:      accounts,
		Usage:         use,
		Kitchen:       kitchen.NewService(db, use, accounts, noGenerator{}, log),
		Payments:      payment.NewService(cfg, db, noCheckout{}, accounts, log),
		Webhooks:      nh.NewNotificationHandler(cfg, db, notifs, grants, nil, nil, nil, log),
		Notifications: notifs,
		Grants:        grants,
		Sweep:         expiry_sweep.NewScheduler(cfg, sweep, nil, log),
		Stats:         statistics.New(db),
	}
	t.Cleanup(notifs.Wait)

	r := newEngine()
	RegisterRoutes(r, d)

	now := time.Now()
	bot, err := mw.IssueToken(jwtSecret, mw.RoleBot, "frontend", time.Hour, now)
	require.NoError(t, err)
	admin, err := mw.IssueToken(jwtSecret, mw.RoleAdmin, "ops", time.Hour, now)
	require.NoError(t, err)
	return &testServer{r: r, deps: d, bot: bot, admin: admin}
}

type envelope struct {
	Code response.APIResponseCode `json:"code"`
	Data json.RawMessage          `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func TestRoutesRegistered(t *testing.T) {
	s := newTestServer(t)
	got := map[string]bool{}
	for _, ri := range s.r.Routes() {
		got[ri.Method+" "+ri.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /swagger/*any",
		"POST /payment/webhook/yookassa",
		"POST /payment/webhook/stripe",
		"POST /api/v1/users/ensure",
		"GET /api/v1/users/:external_id",
		"PATCH /api/v1/users/:external_id",
		"POST /api/v1/gated/attempt",
		"POST /api/v1/gated/complete",
		"POST /api/v1/kitchen/products",
		"POST /api/v1/kitchen/recipes",
		"POST /api/v1/kitchen/meal_plan",
		"GET /api/v1/kitchen/recipes/:external_id",
		"POST /api/v1/payment/checkout",
		"POST /api/v1/payment/register",
		"POST /api/v1/admin/grant_premium",
		"GET /api/v1/admin/grants/:external_id",
		"POST /api/v1/admin/run_sweep",
		"POST /api/v1/admin/list_payments",
		"GET /api/v1/admin/payment_notifications/:payment_id",
		"GET /api/v1/admin/statistics",
	} {
		require.True(t, got[want], "missing route %s", want)
	}
}

func TestAuthBoundaries(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodPost, "/api/v1/users/ensure", "", map[string]any{"external_id": 1})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, response.APIResponseCodeUnauthorized, env.Code)

	status, _ = s.do(t, http.MethodGet, "/api/v1/admin/statistics", s.bot, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/admin/statistics", s.admin, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	// operators may call bot routes too
	status, env = s.do(t, http.MethodPost, "/api/v1/users/ensure", s.admin, map[string]any{"external_id": 1})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
}

func TestFreeQuotaThenLimitReached(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodPost, "/api/v1/users/ensure", s.bot, map[string]any{"external_id": 42, "display_name": "Ann"})
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var view struct {
		RemainingToday *int `json:"remaining_today"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Equal(t, 3, *view.RemainingToday)

	action := map[string]any{"external_id": 42, "kind": "recipe"}
	for i := 0; i < 3; i++ {
		_, env = s.do(t, http.MethodPost, "/api/v1/gated/attempt", s.bot, action)
		require.Equal(t, response.APIResponseCodeOK, env.Code)
		_, env = s.do(t, http.MethodPost, "/api/v1/gated/complete", s.bot, action)
		require.Equal(t, response.APIResponseCodeOK, env.Code)
	}

	status, env := s.do(t, http.MethodPost, "/api/v1/gated/attempt", s.bot, action)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.APIResponseCodeLimitReached, env.Code)
	var d usage.Decision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.False(t, d.Permitted)
	require.Equal(t, 0, *d.Remaining)

	_, env = s.do(t, http.MethodPost, "/api/v1/gated/attempt", s.bot, map[string]any{"external_id": 42, "kind": "meal_plan"})
	require.Equal(t, response.APIResponseCodePremiumRequired, env.Code)
}

func TestGenerateRecipes_LastFreeActionIsOK(t *testing.T) {
	s := newTestServer(t)
	req := map[string]any{"external_id": 43, "products": []string{"egg"}, "count": 1}

	for i := 0; i < 3; i++ {
		status, env := s.do(t, http.MethodPost, "/api/v1/kitchen/recipes", s.bot, req)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, response.APIResponseCodeOK, env.Code, "call %d", i+1)

		var res struct {
			Decision usage.Decision    `json:"decision"`
			Recipes  []json.RawMessage `json:"recipes"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		require.True(t, res.Decision.Permitted)
		require.Len(t, res.Recipes, 1)
		require.Equal(t, 2-i, *res.Decision.Remaining)
	}

	_, env := s.do(t, http.MethodPost, "/api/v1/kitchen/recipes", s.bot, req)
	require.Equal(t, response.APIResponseCodeLimitReached, env.Code)
}

const yookassaSucceeded = `{
  "type": "notification",
  "event": "payment.succeeded",
  "object": {
    "id": "pay-e2e-1",
    "status": "succeeded",
    "paid": true,
    "amount": {"value": "490.00", "currency": "RUB"},
    "metadata": {"telegram_id": "42", "months": "1", "type": "premium_subscription"}
  }
}`

func TestPaymentWebhookGrantsPremiumOnce(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodPost, "/api/v1/payment/register", s.bot, payment.PendingPayment{
		Provider:          types.PaymentProviderYooKassa,
		ExternalPaymentID: "pay-e2e-1",
		ExternalID:        42,
		Months:            1,
		Amount:            49000,
		Currency:          "RUB",
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	status, env := s.do(t, http.MethodPost, "/payment/webhook/yookassa", "", yookassaSucceeded)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var res nh.ReconciliationResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.True(t, res.Granted)

	// redelivery is acknowledged without a second grant
	status, env = s.do(t, http.MethodPost, "/payment/webhook/yookassa", "", yookassaSucceeded)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.False(t, res.Granted)
	require.True(t, res.AlreadyProcessed)

	_, env = s.do(t, http.MethodGet, "/api/v1/admin/grants/42", s.admin, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var grants []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &grants))
	require.Len(t, grants, 1)

	_, env = s.do(t, http.MethodGet, "/api/v1/users/42", s.bot, nil)
	var view struct {
		Premium        types.PremiumStatus `json:"premium"`
		RemainingToday *int                `json:"remaining_today"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.True(t, view.Premium.Active)
	require.Nil(t, view.RemainingToday)
}

func TestWebhookAcknowledgesGarbage(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, http.MethodPost, "/payment/webhook/yookassa", "", "not json")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}
