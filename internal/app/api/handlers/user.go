package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/response"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

type EnsureUserRequest struct {
	ExternalID  int64  `json:"external_id" binding:"required"`
	DisplayName string `json:"display_name"`
}

// UserView is an account with its evaluated entitlement and quota.
type UserView struct {
	Account *models.UserAccount  `json:"account"`
	Premium *types.PremiumStatus `json:"premium"`
	// RemainingToday is nil while premium is active.
	RemainingToday *int `json:"remaining_today"`
}

func toUserView(cfg *config.Config, acc *models.UserAccount, now time.Time) *UserView {
	v := &UserView{Account: acc, Premium: entitlement.StatusOf(acc, now)}
	if !v.Premium.Active {
		v.RemainingToday = lo.ToPtr(usage.Remaining(acc, now, cfg.Quota.FreeActionsPerDay))
	}
	return v
}

// @Summary      Ensure user
// @Description  Creates the account on first contact; an existing account is returned with its display name refreshed.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        request body EnsureUserRequest true "Account identity"
// @Success      200  {object}  handlers.RespUser
// @Security     BearerAuth
// @Router       /api/v1/users/ensure [post]
func ApiEnsureUser(accounts *account.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EnsureUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		acc, err := accounts.GetOrCreate(c.Request.Context(), req.ExternalID, req.DisplayName)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toUserView(cfg, acc, time.Now())))
	}
}

// @Summary      Get user
// @Tags         Users
// @Produce      json
// @Param        external_id path int true "Messaging platform user id"
// @Success      200  {object}  handlers.RespUser
// @Security     BearerAuth
// @Router       /api/v1/users/{external_id} [get]
func ApiGetUser(accounts *account.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathExternalID(c)
		if err != nil {
			writeError(c, err)
			return
		}
		acc, err := accounts.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toUserView(cfg, acc, time.Now())))
	}
}

// @Summary      Update profile
// @Description  Partial update of dietary preferences. An empty diet or a zero calorie goal clears the field.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        external_id path int true "Messaging platform user id"
// @Param        request body account.ProfileUpdate true "Fields to change"
// @Success      200  {object}  handlers.RespUser
// @Security     BearerAuth
// @Router       /api/v1/users/{external_id} [patch]
func ApiUpdateProfile(accounts *account.Service, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathExternalID(c)
		if err != nil {
			writeError(c, err)
			return
		}
		var req account.ProfileUpdate
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		acc, err := accounts.UpdateProfile(c.Request.Context(), id, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(toUserView(cfg, acc, time.Now())))
	}
}

func RegisterUserRoutes(r gin.IRouter, accounts *account.Service, cfg *config.Config) {
	r.POST("/users/ensure", ApiEnsureUser(accounts, cfg))
	r.GET("/users/:external_id", ApiGetUser(accounts, cfg))
	r.PATCH("/users/:external_id", ApiUpdateProfile(accounts, cfg))
}
