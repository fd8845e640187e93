package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
)

// extractJSON pulls the JSON document out of a model reply that may wrap it
// in a markdown fence or surrounding prose.
func extractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if _, after, ok := strings.Cut(text, "```json"); ok {
		text = after
	} else if _, after, ok := strings.Cut(text, "```"); ok {
		text = after
	}
	if before, _, ok := strings.Cut(text, "```"); ok {
		text = before
	}
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	for _, pair := range [][2]string{{"[", "]"}, {"{", "}"}} {
		start, end := strings.Index(text, pair[0]), strings.LastIndex(text, pair[1])
		if start >= 0 && end > start && json.Valid([]byte(text[start:end+1])) {
			return json.RawMessage(text[start : end+1]), nil
		}
	}
	return nil, fmt.Errorf("no json in model reply %q: %w", lo.Substring(text, 0, 200), apperr.ErrUpstreamUnavailable)
}

func decodeProducts(text string) ([]string, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("products reply is not an array: %w", apperr.ErrUpstreamUnavailable)
	}
	products := lo.FilterMap(items, func(it any, _ int) (string, bool) {
		s := strings.ToLower(strings.TrimSpace(fmt.Sprint(it)))
		return s, it != nil && s != ""
	})
	return lo.Uniq(products), nil
}

func decodeRecipes(text string) ([]Recipe, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var recipes []Recipe
	if err := json.Unmarshal(raw, &recipes); err != nil {
		// a single object instead of an array
		var one Recipe
		if err2 := json.Unmarshal(raw, &one); err2 != nil {
			return nil, fmt.Errorf("decode recipes: %v: %w", err, apperr.ErrUpstreamUnavailable)
		}
		recipes = []Recipe{one}
	}
	recipes = lo.Filter(recipes, func(r Recipe, _ int) bool { return strings.TrimSpace(r.Title) != "" })
	if len(recipes) == 0 {
		return nil, fmt.Errorf("model returned no recipes: %w", apperr.ErrUpstreamUnavailable)
	}
	return recipes, nil
}

func decodeMealPlan(text string) (*MealPlan, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode meal plan: %v: %w", err, apperr.ErrUpstreamUnavailable)
	}
	plan := &MealPlan{}
	for _, day := range Weekdays {
		body, ok := doc[day]
		if !ok {
			continue
		}
		dp := DayPlan{Day: day}
		if err := json.Unmarshal(body, &dp); err != nil {
			return nil, fmt.Errorf("decode meal plan %s: %v: %w", day, err, apperr.ErrUpstreamUnavailable)
		}
		dp.Day = day
		plan.Days = append(plan.Days, dp)
	}
	if len(plan.Days) == 0 {
		return nil, fmt.Errorf("meal plan has no days: %w", apperr.ErrUpstreamUnavailable)
	}
	// summary fields are best effort; a malformed one is dropped
	if list, ok := optional[[]string](doc, "shopping_list"); ok {
		plan.ShoppingList = list
	}
	if v, ok := optional[float64](doc, "total_weekly_calories"); ok {
		plan.TotalWeeklyCalories = &v
	}
	if v, ok := optional[float64](doc, "total_weekly_cost"); ok {
		plan.TotalWeeklyCost = &v
	}
	return plan, nil
}

func optional[T any](doc map[string]json.RawMessage, key string) (T, bool) {
	var v T
	body, ok := doc[key]
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, false
	}
	return v, true
}
