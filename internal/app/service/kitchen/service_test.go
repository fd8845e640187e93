package kitchen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/usage"
	"github.com/whattoeat/kitchenbot/internal/models"
	"github.com/whattoeat/kitchenbot/internal/platform/db/dbtest"
	"github.com/whattoeat/kitchenbot/internal/platform/llm"
	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeGenerator struct {
	products   []string
	transcript string
	recipes    []llm.Recipe
	plan       *llm.MealPlan
	err        error

	lastRecipeReq llm.RecipeRequest
	lastText      string
	recipeCalls   int
	planCalls     int
}

func (f *fakeGenerator) ExtractProducts(ctx context.Context, text string) ([]string, error) {
	f.lastText = text
	return f.products, f.err
}

func (f *fakeGenerator) ExtractProductsFromImage(ctx context.Context, image []byte, mimeType string) ([]string, error) {
	return f.products, f.err
}

func (f *fakeGenerator) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return f.transcript, f.err
}

func (f *fakeGenerator) GenerateRecipes(ctx context.Context, req llm.RecipeRequest) ([]llm.Recipe, error) {
	f.recipeCalls++
	f.lastRecipeReq = req
	return f.recipes, f.err
}

func (f *fakeGenerator) GenerateMealPlan(ctx context.Context, req llm.MealPlanRequest) (*llm.MealPlan, error) {
	f.planCalls++
	return f.plan, f.err
}

func newTestService(t *testing.T, gen *fakeGenerator) (*Service, *account.Service) {
	t.Helper()
	db := dbtest.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{Quota: config.QuotaConfig{FreeActionsPerDay: 3}}
	accounts := account.NewService(db, log)
	return NewService(db, usage.NewService(cfg, accounts, nil, log), accounts, gen, log), accounts
}

func omelette() llm.Recipe {
	return llm.Recipe{
		Title:       "Omelette",
		Description: "Quick breakfast",
		CookingTime: lo.ToPtr(9.6),
		Ingredients: []llm.Ingredient{{Name: "eggs", Amount: "3", Have: true}, {Name: "milk", Amount: "50 ml"}},
		Steps:       []llm.Step{{Step: 1, Text: "Whisk", Time: "1 min"}, {Text: "Fry"}},
		Tips:        "Serve hot",
		Calories:    lo.ToPtr(250.4),
	}
}

func TestGenerateRecipes_ChargesAndSavesOnSuccess(t *testing.T) {
	gen := &fakeGenerator{recipes: []llm.Recipe{omelette()}}
	s, accounts := newTestService(t, gen)
	ctx := context.Background()
	_, err := accounts.GetOrCreate(ctx, 1, "")
	require.NoError(t, err)
	_, err = accounts.UpdateProfile(ctx, 1, account.ProfileUpdate{Allergies: &[]string{"Nuts"}})
	require.NoError(t, err)

	res, err := s.GenerateRecipes(ctx, 1, []string{" Eggs", "eggs", "milk"}, 9, now)
	require.NoError(t, err)
	require.True(t, res.Decision.Permitted)
	require.Equal(t, 2, *res.Decision.Remaining)
	require.Equal(t, 1, res.Decision.UsageCountToday)
	require.Len(t, res.Recipes, 1)

	require.Equal(t, []string{"eggs", "milk"}, gen.lastRecipeReq.Products)
	require.Equal(t, maxRecipeCount, gen.lastRecipeReq.Count)
	require.Equal(t, []string{"nuts"}, gen.lastRecipeReq.Profile.Allergies)

	r := res.Recipes[0]
	require.Equal(t, 250, *r.Calories)
	require.Equal(t, 10, *r.CookingTime)
	require.Equal(t, "Quick breakfast\n\n1. Whisk (1 min)\n2. Fry\n\nServe hot", r.Instructions)
	require.Len(t, r.Ingredients, 2)
	require.False(t, r.Ingredients[1].Have)

	saved, err := s.ListRecipes(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Equal(t, r.ID, saved[0].ID)
}

func TestGenerateRecipes_FailureDoesNotCharge(t *testing.T) {
	gen := &fakeGenerator{err: apperr.ErrUpstreamUnavailable}
	s, accounts := newTestService(t, gen)
	ctx := context.Background()

	_, err := s.GenerateRecipes(ctx, 2, []string{"rice"}, 0, now)
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	require.Equal(t, llm.DefaultRecipeCount, gen.lastRecipeReq.Count)

	acc, err := accounts.Get(ctx, 2)
	require.NoError(t, err)
	require.Zero(t, acc.UsageCountToday)
	require.Zero(t, acc.LifetimeUsageCount)

	saved, err := s.ListRecipes(ctx, 2, 0)
	require.NoError(t, err)
	require.Empty(t, saved)
}

func TestGenerateRecipes_DeniedAtLimitSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{recipes: []llm.Recipe{omelette()}}
	s, _ := newTestService(t, gen)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := s.GenerateRecipes(ctx, 3, []string{"eggs"}, 1, now)
		require.NoError(t, err)
		require.True(t, res.Decision.Permitted)
		require.Empty(t, res.Decision.Reason)
		require.Equal(t, 2-i, *res.Decision.Remaining)
		require.NotEmpty(t, res.Recipes)
	}
	res, err := s.GenerateRecipes(ctx, 3, []string{"eggs"}, 1, now)
	require.NoError(t, err)
	require.False(t, res.Decision.Permitted)
	require.Equal(t, types.DenyReasonLimitReached, res.Decision.Reason)
	require.Empty(t, res.Recipes)
	require.Equal(t, 3, gen.recipeCalls)
}

func TestGenerateRecipes_NoProducts(t *testing.T) {
	s, _ := newTestService(t, &fakeGenerator{})
	_, err := s.GenerateRecipes(context.Background(), 4, []string{" ", ""}, 1, now)
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
}

func TestGenerateMealPlan_PremiumOnly(t *testing.T) {
	gen := &fakeGenerator{plan: &llm.MealPlan{Days: []llm.DayPlan{{Day: "monday"}}}}
	s, accounts := newTestService(t, gen)
	ctx := context.Background()

	res, err := s.GenerateMealPlan(ctx, 5, now)
	require.NoError(t, err)
	require.False(t, res.Decision.Permitted)
	require.Equal(t, types.DenyReasonPremiumRequired, res.Decision.Reason)
	require.Nil(t, res.Plan)
	require.Zero(t, gen.planCalls)

	_, err = accounts.Mutate(ctx, 5, func(acc *models.UserAccount) (bool, error) {
		acc.IsPremium = true
		acc.PremiumUntil = lo.ToPtr(now.Add(24 * time.Hour))
		return true, nil
	})
	require.NoError(t, err)

	res, err = s.GenerateMealPlan(ctx, 5, now)
	require.NoError(t, err)
	require.True(t, res.Decision.Permitted)
	require.NotNil(t, res.Plan)

	acc, err := accounts.Get(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, acc.LifetimeUsageCount, "meal plans are not metered")
}

func TestExtractProducts(t *testing.T) {
	gen := &fakeGenerator{products: []string{"milk"}, transcript: "some milk"}
	s, _ := newTestService(t, gen)
	ctx := context.Background()

	res, err := s.ExtractProducts(ctx, ProductInput{Audio: []byte("OggS")})
	require.NoError(t, err)
	require.Equal(t, "some milk", res.Transcript)
	require.Equal(t, "some milk", gen.lastText)

	res, err = s.ExtractProducts(ctx, ProductInput{Image: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, []string{"milk"}, res.Products)

	res, err = s.ExtractProducts(ctx, ProductInput{Text: "milk please"})
	require.NoError(t, err)
	require.Empty(t, res.Transcript)

	_, err = s.ExtractProducts(ctx, ProductInput{Text: "  "})
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)

	gen.err = errors.New("asr down")
	_, err = s.ExtractProducts(ctx, ProductInput{Audio: []byte("OggS")})
	require.ErrorContains(t, err, "asr down")
}

func TestListRecipes_NewestFirstAndOwned(t *testing.T) {
	gen := &fakeGenerator{recipes: []llm.Recipe{omelette()}}
	s, _ := newTestService(t, gen)
	ctx := context.Background()

	gen.recipes[0].Title = "First"
	_, err := s.GenerateRecipes(ctx, 6, []string{"eggs"}, 1, now)
	require.NoError(t, err)
	gen.recipes[0].Title = "Second"
	_, err = s.GenerateRecipes(ctx, 6, []string{"eggs"}, 1, now.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.GenerateRecipes(ctx, 7, []string{"eggs"}, 1, now)
	require.NoError(t, err)

	got, err := s.ListRecipes(ctx, 6, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Second", "First"}, lo.Map(got, func(r models.SavedRecipe, _ int) string { return r.Title }))

	got, err = s.ListRecipes(ctx, 6, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
