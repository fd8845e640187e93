package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/response"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

type GatedActionRequest struct {
	ExternalID int64            `json:"external_id" binding:"required"`
	Kind       types.ActionKind `json:"kind"`
}

// writeDecision answers with the decision; a denial carries the deny code.
func writeDecision(c *gin.Context, d *usage.Decision, data any) {
	switch {
	case d.Permitted:
		c.JSON(http.StatusOK, response.OKT(data))
	case d.Reason == types.DenyReasonPremiumRequired:
		c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodePremiumRequired, data))
	default:
		c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeLimitReached, data))
	}
}

// @Summary      Attempt gated action
// @Description  Checks whether the action may run now. Nothing is charged.
// @Tags         Gated
// @Accept       json
// @Produce      json
// @Param        request body GatedActionRequest true "Account and action kind (recipe or meal_plan)"
// @Success      200  {object}  handlers.RespDecision
// @Security     BearerAuth
// @Router       /api/v1/gated/attempt [post]
func ApiAttemptGatedAction(svc *usage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GatedActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		ctx := logctx.WithExternalID(c.Request.Context(), req.ExternalID)
		d, err := svc.AttemptGatedAction(ctx, req.ExternalID, req.Kind, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		writeDecision(c, d, d)
	}
}

// @Summary      Complete gated action
// @Description  Charges one unit after the action succeeded. Premium-only kinds are not metered.
// @Tags         Gated
// @Accept       json
// @Produce      json
// @Param        request body GatedActionRequest true "Account and action kind"
// @Success      200  {object}  handlers.RespDecision
// @Security     BearerAuth
// @Router       /api/v1/gated/complete [post]
func ApiCompleteGatedAction(svc *usage.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GatedActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		ctx := logctx.WithExternalID(c.Request.Context(), req.ExternalID)
		d, err := svc.RecordGatedActionCompleted(ctx, req.ExternalID, req.Kind, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(d))
	}
}

func RegisterGatedRoutes(r gin.IRouter, svc *usage.Service) {
	r.POST("/gated/attempt", ApiAttemptGatedAction(svc))
	r.POST("/gated/complete", ApiCompleteGatedAction(svc))
}
