package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whattoeat/kitchenbot/internal/app/service/kitchen"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/response"
)

// ExtractProductsRequest carries one of text, a base64 image or base64 audio.
type ExtractProductsRequest struct {
	Text      string `json:"text"`
	Image     []byte `json:"image" swaggertype:"string" format:"base64"`
	ImageMime string `json:"image_mime"`
	Audio     []byte `json:"audio" swaggertype:"string" format:"base64"`
	AudioName string `json:"audio_name"`
}

type GenerateRecipesRequest struct {
	ExternalID int64    `json:"external_id" binding:"required"`
	Products   []string `json:"products" binding:"required,min=1"`
	Count      int      `json:"count"`
}

type MealPlanRequest struct {
	ExternalID int64 `json:"external_id" binding:"required"`
}

// @Summary      Extract products
// @Description  Recognises food products in text, a photo or a voice message. Not metered.
// @Tags         Kitchen
// @Accept       json
// @Produce      json
// @Param        request body ExtractProductsRequest true "Input"
// @Success      200  {object}  handlers.RespProducts
// @Security     BearerAuth
// @Router       /api/v1/kitchen/products [post]
func ApiExtractProducts(svc *kitchen.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExtractProductsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ExtractProducts(c.Request.Context(), kitchen.ProductInput{
			Text:      req.Text,
			Image:     req.Image,
			ImageMime: req.ImageMime,
			Audio:     req.Audio,
			AudioName: req.AudioName,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Generate recipes
// @Description  Metered: one free action is charged only when generation succeeds.
// @Tags         Kitchen
// @Accept       json
// @Produce      json
// @Param        request body GenerateRecipesRequest true "Products and recipe count"
// @Success      200  {object}  handlers.RespRecipes
// @Security     BearerAuth
// @Router       /api/v1/kitchen/recipes [post]
func ApiGenerateRecipes(svc *kitchen.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRecipesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		ctx := logctx.WithExternalID(c.Request.Context(), req.ExternalID)
		res, err := svc.GenerateRecipes(ctx, req.ExternalID, req.Products, req.Count, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		writeDecision(c, res.Decision, res)
	}
}

// @Summary      Generate meal plan
// @Description  Seven-day plan, premium only.
// @Tags         Kitchen
// @Accept       json
// @Produce      json
// @Param        request body MealPlanRequest true "Account"
// @Success      200  {object}  handlers.RespMealPlan
// @Security     BearerAuth
// @Router       /api/v1/kitchen/meal_plan [post]
func ApiGenerateMealPlan(svc *kitchen.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MealPlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		ctx := logctx.WithExternalID(c.Request.Context(), req.ExternalID)
		res, err := svc.GenerateMealPlan(ctx, req.ExternalID, time.Now())
		if err != nil {
			writeError(c, err)
			return
		}
		writeDecision(c, res.Decision, res)
	}
}

// @Summary      List saved recipes
// @Tags         Kitchen
// @Produce      json
// @Param        external_id path int true "Messaging platform user id"
// @Param        limit query int false "Max items (default 10, max 50)"
// @Success      200  {object}  handlers.RespSavedRecipes
// @Security     BearerAuth
// @Router       /api/v1/kitchen/recipes/{external_id} [get]
func ApiListRecipes(svc *kitchen.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathExternalID(c)
		if err != nil {
			writeError(c, err)
			return
		}
		items, err := svc.ListRecipes(c.Request.Context(), id, queryInt(c, "limit", 0))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(items))
	}
}

func RegisterKitchenRoutes(r gin.IRouter, svc *kitchen.Service) {
	r.POST("/kitchen/products", ApiExtractProducts(svc))
	r.POST("/kitchen/recipes", ApiGenerateRecipes(svc))
	r.POST("/kitchen/meal_plan", ApiGenerateMealPlan(svc))
	r.GET("/kitchen/recipes/:external_id", ApiListRecipes(svc))
}
