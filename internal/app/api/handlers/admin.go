package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whattoeat/kitchenbot/internal/app/api/middleware"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/expiry_sweep"
	notificationlog "github.com/whattoeat/kitchenbot/internal/app/service/notification_log"
	"github.com/whattoeat/kitchenbot/internal/app/service/payment"
	"github.com/whattoeat/kitchenbot/internal/app/service/statistics"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/response"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

type GrantPremiumRequest struct {
	ExternalID int64  `json:"external_id" binding:"required"`
	Months     int    `json:"months" binding:"required,min=1"`
	OperatorID string `json:"operator_id"`
}

type RunSweepResponse struct {
	Expired int64 `json:"expired"`
}

// @Summary      Grant premium (Admin)
// @Description  Adds months of premium. Grants stack on an active window and restart from now after expiry.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body GrantPremiumRequest true "Grant"
// @Success      200  {object}  handlers.RespGrant
// @Security     BearerAuth
// @Router       /api/v1/admin/grant_premium [post]
func ApiGrantPremium(svc *entitlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GrantPremiumRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		operator := req.OperatorID
		if operator == "" {
			if cl := middleware.ClaimsFrom(c); cl != nil {
				operator = cl.Subject
			}
		}
		ctx := logctx.WithExternalID(c.Request.Context(), req.ExternalID)
		res, err := svc.GrantPremium(ctx, entitlement.GrantRequest{
			ExternalID: req.ExternalID,
			Months:     req.Months,
			Source:     types.GrantSourceAdmin,
			OperatorID: operator,
		}, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List grants (Admin)
// @Tags         Admin
// @Produce      json
// @Param        external_id path int true "Messaging platform user id"
// @Param        limit query int false "Max items (default 20, max 100)"
// @Success      200  {object}  handlers.RespGrantLogs
// @Security     BearerAuth
// @Router       /api/v1/admin/grants/{external_id} [get]
func ApiListGrants(svc *entitlement.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathExternalID(c)
		if err != nil {
			writeError(c, err)
			return
		}
		items, err := svc.ListGrants(c.Request.Context(), id, queryInt(c, "limit", 0))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

// @Summary      Run expiry sweep (Admin)
// @Description  Runs one sweep pass now, outside the hourly schedule.
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespRunSweep
// @Security     BearerAuth
// @Router       /api/v1/admin/run_sweep [post]
func ApiRunSweep(s *expiry_sweep.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := s.RunOnce(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&RunSweepResponse{Expired: n}))
	}
}

// @Summary      List payments (Admin)
// @Description  Paginated, filterable list of payment records.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body payment.ScanPaymentsRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespListPayments
// @Security     BearerAuth
// @Router       /api/v1/admin/list_payments [post]
func ApiListPayments(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.ScanPaymentsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.Scan(c.Request.Context(), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Payment notifications (Admin)
// @Description  Webhook audit trail for one payment, oldest first.
// @Tags         Admin
// @Produce      json
// @Param        payment_id path string true "Provider payment id"
// @Success      200  {object}  handlers.RespNotificationLogs
// @Security     BearerAuth
// @Router       /api/v1/admin/payment_notifications/{payment_id} [get]
func ApiPaymentNotifications(svc *notificationlog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListByPaymentID(c.Request.Context(), c.Param("payment_id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

// @Summary      Statistics overview (Admin)
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  handlers.RespStatistics
// @Security     BearerAuth
// @Router       /api/v1/admin/statistics [get]
func ApiStatistics(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Overview(c.Request.Context(), time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type AdminDeps struct {
	Grants        *entitlement.Service
	Sweep         *expiry_sweep.Scheduler
	Payments      *payment.Service
	Notifications *notificationlog.Service
	Stats         *statistics.Service
}

func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.POST("/grant_premium", ApiGrantPremium(d.Grants))
	r.GET("/grants/:external_id", ApiListGrants(d.Grants))
	r.POST("/run_sweep", ApiRunSweep(d.Sweep))
	r.POST("/list_payments", ApiListPayments(d.Payments))
	r.GET("/payment_notifications/:payment_id", ApiPaymentNotifications(d.Notifications))
	r.GET("/statistics", ApiStatistics(d.Stats))
}
