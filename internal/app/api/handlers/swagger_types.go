package handlers

import (
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/kitchen"
	nh "github.com/whattoeat/kitchenbot/internal/app/service/notification_handler"
	"github.com/whattoeat/kitchenbot/internal/app/service/payment"
	"github.com/whattoeat/kitchenbot/internal/app/service/statistics"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/response"
)

// Envelope types below exist for the generated API docs only.

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespUser struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    UserView                 `json:"data"`
}

// RespDecision carries code 40300 (limit reached) or 40301 (premium required) on denial.
type RespDecision struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    usage.Decision           `json:"data"`
}

type RespProducts struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    kitchen.ProductsResult   `json:"data"`
}

type RespRecipes struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    kitchen.RecipesResult    `json:"data"`
}

type RespMealPlan struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    kitchen.MealPlanResult   `json:"data"`
}

type RespSavedRecipes struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.SavedRecipe     `json:"data"`
}

type RespCheckout struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.CheckoutResult   `json:"data"`
}

type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.PaymentRecord     `json:"data"`
}

type RespReconciliation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    nh.ReconciliationResult  `json:"data"`
}

type RespGrant struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    entitlement.GrantResult  `json:"data"`
}

type RespGrantLogs struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.PremiumGrantLog `json:"data"`
}

type RespRunSweep struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    RunSweepResponse         `json:"data"`
}

type RespListPayments struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    payment.ScanPaymentsResponse `json:"data"`
}

type RespNotificationLogs struct {
	Code    response.APIResponseCode        `json:"code"`
	Message string                          `json:"message"`
	Data    []models.PaymentNotificationLog `json:"data"`
}

type RespStatistics struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    statistics.Overview      `json:"data"`
}
