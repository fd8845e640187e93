package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/whattoeat/kitchenbot/internal/app/service/payment"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/response"
)

type CheckoutRequest struct {
	ExternalID int64  `json:"external_id" binding:"required"`
	PlanID     string `json:"plan_id" binding:"required"`
}

// @Summary      Create checkout
// @Description  Opens a hosted checkout for a premium plan and records the payment as pending.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body CheckoutRequest true "Account and plan"
// @Success      200  {object}  handlers.RespCheckout
// @Security     BearerAuth
// @Router       /api/v1/payment/checkout [post]
func ApiCreateCheckout(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		ctx := logctx.WithExternalID(c.Request.Context(), req.ExternalID)
		res, err := svc.CreateCheckout(ctx, req.ExternalID, req.PlanID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Register pending payment
// @Description  Records a payment created by the front-end with a provider directly. Idempotent per payment id.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body payment.PendingPayment true "Pending payment"
// @Success      200  {object}  handlers.RespPayment
// @Security     BearerAuth
// @Router       /api/v1/payment/register [post]
func ApiRegisterPayment(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.PendingPayment
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		rec, err := svc.RegisterPending(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(rec))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service) {
	r.POST("/payment/checkout", ApiCreateCheckout(svc))
	r.POST("/payment/register", ApiRegisterPayment(svc))
}
