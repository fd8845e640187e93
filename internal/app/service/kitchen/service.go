package kitchen

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/internal/platform/llm"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
	"github.com/whattoeat/kitchenbot/pkg/tool"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

const (
	maxRecipeCount   = 5
	defaultListLimit = 10
	maxListLimit     = 50
)

// Generator produces content for the gated flows.
type Generator interface {
	ExtractProducts(ctx context.Context, text string) ([]string, error)
	ExtractProductsFromImage(ctx context.Context, image []byte, mimeType string) ([]string, error)
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
	GenerateRecipes(ctx context.Context, req llm.RecipeRequest) ([]llm.Recipe, error)
	GenerateMealPlan(ctx context.Context, req llm.MealPlanRequest) (*llm.MealPlan, error)
}

type Service struct {
	db       *gorm.DB
	usage    *usage.Service
	accounts *account.Service
	gen      Generator
	log      *zap.SugaredLogger
}

func NewService(db *gorm.DB, u *usage.Service, accounts *account.Service, gen Generator, log *zap.SugaredLogger) *Service {
	return &Service{db: db, usage: u, accounts: accounts, gen: gen, log: log}
}

var Module = fx.Options(
	fx.Provide(
		NewService,
		func(c *llm.Client) Generator { return c },
	),
)

// ProductInput holds exactly one of text, image or voice.
type ProductInput struct {
	Text      string
	Image     []byte
	ImageMime string
	Audio     []byte
	AudioName string
}

type ProductsResult struct {
	Products []string `json:"products"`
	// Transcript is set for voice input.
	Transcript string `json:"transcript,omitempty"`
}

// ExtractProducts recognises products in free text, a photo or a voice
// message. It is not gated.
func (s *Service) ExtractProducts(ctx context.Context, in ProductInput) (*ProductsResult, error) {
	switch {
	case len(in.Audio) > 0:
		text, err := s.gen.Transcribe(ctx, in.Audio, in.AudioName)
		if err != nil {
			return nil, fmt.Errorf("failed to transcribe voice: %w", err)
		}
		if text == "" {
			return &ProductsResult{}, nil
		}
		products, err := s.gen.ExtractProducts(ctx, text)
		if err != nil {
			return nil, err
		}
		return &ProductsResult{Products: products, Transcript: text}, nil
	case len(in.Image) > 0:
		products, err := s.gen.ExtractProductsFromImage(ctx, in.Image, in.ImageMime)
		if err != nil {
			return nil, err
		}
		return &ProductsResult{Products: products}, nil
	case strings.TrimSpace(in.Text) != "":
		products, err := s.gen.ExtractProducts(ctx, in.Text)
		if err != nil {
			return nil, err
		}
		return &ProductsResult{Products: products}, nil
	default:
		return nil, fmt.Errorf("no text, image or audio: %w", apperr.ErrInvalidPayload)
	}
}

// RecipesResult carries the gate decision and, when permitted, the recipes.
type RecipesResult struct {
	Decision *usage.Decision      `json:"decision"`
	Recipes  []models.SavedRecipe `json:"recipes"`
}

// GenerateRecipes runs the metered recipe flow. Usage is charged only after
// generation succeeded; a denied request returns the decision and no recipes.
func (s *Service) GenerateRecipes(ctx context.Context, externalID int64, products []string, count int, now time.Time) (*RecipesResult, error) {
	products = account.NormalizeSet(products)
	if len(products) == 0 {
		return nil, fmt.Errorf("no products: %w", apperr.ErrInvalidPayload)
	}
	if count <= 0 {
		count = llm.DefaultRecipeCount
	}
	count = min(count, maxRecipeCount)

	d, err := s.usage.AttemptGatedAction(ctx, externalID, types.ActionKindRecipe, now)
	if err != nil {
		return nil, err
	}
	if !d.Permitted {
		return &RecipesResult{Decision: d}, nil
	}
	acc, err := s.accounts.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}

	generated, err := s.gen.GenerateRecipes(ctx, llm.RecipeRequest{
		Products: products,
		Count:    count,
		Profile:  profileOf(acc),
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("recipe_generation_failed", "external_id", externalID, "error", err)
		return nil, fmt.Errorf("failed to generate recipes: %w", err)
	}

	d, err = s.usage.RecordGatedActionCompleted(ctx, externalID, types.ActionKindRecipe, now)
	if err != nil {
		return nil, err
	}

	recipes := lo.Map(generated, func(r llm.Recipe, _ int) models.SavedRecipe {
		return toSavedRecipe(externalID, r, now)
	})
	if len(recipes) == 0 {
		return &RecipesResult{Decision: d}, nil
	}
	// usage is already charged; a failed save still returns the recipes
	if err := s.db.WithContext(ctx).Create(&recipes).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("save_recipes_failed", "external_id", externalID, "error", err)
	}
	return &RecipesResult{Decision: d, Recipes: recipes}, nil
}

type MealPlanResult struct {
	Decision *usage.Decision `json:"decision"`
	Plan     *llm.MealPlan   `json:"plan,omitempty"`
}

// GenerateMealPlan is available to active premium accounts only.
func (s *Service) GenerateMealPlan(ctx context.Context, externalID int64, now time.Time) (*MealPlanResult, error) {
	d, err := s.usage.AttemptGatedAction(ctx, externalID, types.ActionKindMealPlan, now)
	if err != nil {
		return nil, err
	}
	if !d.Permitted {
		return &MealPlanResult{Decision: d}, nil
	}
	acc, err := s.accounts.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	plan, err := s.gen.GenerateMealPlan(ctx, llm.MealPlanRequest{Profile: profileOf(acc)})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("meal_plan_generation_failed", "external_id", externalID, "error", err)
		return nil, fmt.Errorf("failed to generate meal plan: %w", err)
	}
	d, err = s.usage.RecordGatedActionCompleted(ctx, externalID, types.ActionKindMealPlan, now)
	if err != nil {
		return nil, err
	}
	return &MealPlanResult{Decision: d, Plan: plan}, nil
}

// ListRecipes returns the newest saved recipes first.
func (s *Service) ListRecipes(ctx context.Context, externalID int64, limit int) ([]models.SavedRecipe, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)
	var out []models.SavedRecipe
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return out, nil
}

func profileOf(acc *models.UserAccount) llm.Profile {
	return llm.Profile{
		Diet:        lo.FromPtr(acc.DietPreference),
		Allergies:   acc.Allergies,
		Excluded:    acc.ExcludedProducts,
		CalorieGoal: lo.FromPtr(acc.CalorieGoal),
	}
}

func toSavedRecipe(externalID int64, r llm.Recipe, now time.Time) models.SavedRecipe {
	var b strings.Builder
	if r.Description != "" {
		b.WriteString(r.Description)
		b.WriteString("\n\n")
	}
	for i, st := range r.Steps {
		n := st.Step
		if n <= 0 {
			n = i + 1
		}
		fmt.Fprintf(&b, "%d. %s", n, st.Text)
		if st.Time != "" {
			fmt.Fprintf(&b, " (%s)", st.Time)
		}
		b.WriteString("\n")
	}
	if r.Tips != "" {
		b.WriteString("\n")
		b.WriteString(r.Tips)
	}

	return models.SavedRecipe{
		ID:         tool.GenerateUUIDV7(),
		ExternalID: externalID,
		Title:      strings.TrimSpace(r.Title),
		Ingredients: lo.Map(r.Ingredients, func(in llm.Ingredient, _ int) models.RecipeIngredient {
			return models.RecipeIngredient{Name: in.Name, Amount: in.Amount, Have: in.Have}
		}),
		Instructions:  strings.TrimSpace(b.String()),
		Calories:      roundInt(r.Calories),
		Proteins:      r.Proteins,
		Fats:          r.Fats,
		Carbs:         r.Carbs,
		EstimatedCost: r.EstimatedCost,
		CookingTime:   roundInt(r.CookingTime),
		CreatedAt:     now.UTC(),
	}
}

func roundInt(f *float64) *int {
	if f == nil {
		return nil
	}
	return lo.ToPtr(int(math.Round(*f)))
}
