package llm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `["a"]`, `["a"]`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"prose around array", `Here you go: ["x", "y"] enjoy`, `["x", "y"]`},
		{"prose around object", `Plan: {"monday": {}} done`, `{"monday": {}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSON(tc.in)
			require.NoError(t, err)
			require.JSONEq(t, tc.want, string(got))
		})
	}

	_, err := extractJSON("no json here")
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestDecodeRecipes_SingleObject(t *testing.T) {
	got, err := decodeRecipes(`{"title":"Soup","portions":2}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Soup", got[0].Title)
}

func TestDecodeProducts_NotAnArray(t *testing.T) {
	_, err := decodeProducts(`{"products":["a"]}`)
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestDecodeMealPlan(t *testing.T) {
	plan, err := decodeMealPlan("```json\n" + `{
  "tuesday": {"breakfast": {"title": "Porridge", "calories": 300}},
  "monday": {"lunch": {"title": "Soup", "ingredients": ["beet"]}, "dinner": {"title": "Fish"}},
  "shopping_list": ["beet - 1 kg"],
  "total_weekly_calories": 14000,
  "total_weekly_cost": "unknown"
}` + "\n```")
	require.NoError(t, err)
	require.Len(t, plan.Days, 2)
	require.Equal(t, "monday", plan.Days[0].Day)
	require.Equal(t, "Soup", plan.Days[0].Lunch.Title)
	require.Nil(t, plan.Days[0].Breakfast)
	require.Equal(t, "tuesday", plan.Days[1].Day)
	require.Equal(t, []string{"beet - 1 kg"}, plan.ShoppingList)
	require.InDelta(t, 14000, *plan.TotalWeeklyCalories, 0.1)
	require.Nil(t, plan.TotalWeeklyCost)

	_, err = decodeMealPlan(`{"shopping_list": []}`)
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}
