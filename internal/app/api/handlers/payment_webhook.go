package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	nh "github.com/whattoeat/kitchenbot/internal/app/service/notification_handler"
	"github.com/whattoeat/kitchenbot/pkg/response"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// ApiPaymentWebhook acknowledges every delivery with 200. The outcome is
// reported in the envelope code and the notification log.
func ApiPaymentWebhook(h *nh.NotificationHandler, provider types.PaymentProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.HandleNotification(c, provider)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](errorCode(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      YooKassa webhook
// @Description  Payment status notification. Always answers 200.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body notification_handler.YooKassaNotification true "Notification"
// @Success      200  {object}  handlers.RespReconciliation
// @Router       /payment/webhook/yookassa [post]
func ApiYooKassaWebhook(h *nh.NotificationHandler) gin.HandlerFunc {
	return ApiPaymentWebhook(h, types.PaymentProviderYooKassa)
}

// @Summary      Stripe webhook
// @Description  Checkout session events, verified with the Stripe-Signature header. Always answers 200.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body string true "Stripe event"
// @Success      200  {object}  handlers.RespReconciliation
// @Router       /payment/webhook/stripe [post]
func ApiStripeWebhook(h *nh.NotificationHandler) gin.HandlerFunc {
	return ApiPaymentWebhook(h, types.PaymentProviderStripe)
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, h *nh.NotificationHandler) {
	r.POST("/payment/webhook/yookassa", ApiYooKassaWebhook(h))
	r.POST("/payment/webhook/stripe", ApiStripeWebhook(h))
}
