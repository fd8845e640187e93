package llm

import (
	"fmt"
	"strings"
)

const productsPrompt = `You are the assistant of a cooking bot.
The user describes what is in their fridge. Extract the list of food products.
Return ONLY a JSON array of strings, no explanations.
Example: ["chicken", "potatoes", "onion", "carrot", "sour cream"]
If there are no products return [].`

const photoPrompt = `The photo shows the contents of a fridge or some groceries.
List ALL visible food products. Guess when unsure.
Return ONLY a JSON array of strings: ["product1", "product2"]`

const recipeSystemPrompt = `You are an experienced chef and dietitian. Answer with valid JSON only.`

const mealPlanSystemPrompt = `You are a professional dietitian. Answer with valid JSON only.`

func recipePrompt(req RecipeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User products: %s\n\n", strings.Join(req.Products, ", "))
	writeProfile(&b, req.Profile)
	fmt.Fprintf(&b, `
Suggest %d detailed recipes. Basic spices, salt, pepper, oil, water, flour and sugar may be used.

Return a JSON array:
[
  {
    "title": "Dish name",
    "description": "one or two sentences",
    "cooking_time": minutes,
    "difficulty": "easy|medium|hard",
    "portions": number,
    "ingredients": [{"name": "product", "amount": "200 g", "have": true, "substitute": "what to use instead"}],
    "steps": [{"step": 1, "text": "detailed step", "time": "5 minutes"}],
    "tips": "serving and storage tips",
    "calories": kcal_per_portion,
    "proteins": grams,
    "fats": grams,
    "carbs": grams,
    "estimated_cost": total_cost_rub
  }
]
"have" is true when the user already has the product.`, req.Count)
	return b.String()
}

func mealPlanPrompt(req MealPlanRequest) string {
	var b strings.Builder
	b.WriteString("Make a 7-day meal plan with breakfast, lunch and dinner for each day.\n\n")
	writeProfile(&b, req.Profile)
	b.WriteString(`
Return a JSON object:
{
  "monday": {
    "breakfast": {"title": "...", "calories": number, "ingredients": ["..."], "instructions": "..."},
    "lunch": {...},
    "dinner": {...}
  },
  "tuesday": {...}, "wednesday": {...}, "thursday": {...}, "friday": {...}, "saturday": {...}, "sunday": {...},
  "shopping_list": ["product - amount"],
  "total_weekly_calories": number,
  "total_weekly_cost": number_rub
}`)
	return b.String()
}

func writeProfile(b *strings.Builder, p Profile) {
	if p.Diet != "" {
		fmt.Fprintf(b, "Diet: %s\n", p.Diet)
	} else {
		b.WriteString("No diet restrictions\n")
	}
	if len(p.Allergies) > 0 {
		fmt.Fprintf(b, "ALLERGIES (must be excluded): %s\n", strings.Join(p.Allergies, ", "))
	}
	if len(p.Excluded) > 0 {
		fmt.Fprintf(b, "Do not use: %s\n", strings.Join(p.Excluded, ", "))
	}
	if p.CalorieGoal > 0 {
		fmt.Fprintf(b, "Daily calorie goal: %d kcal\n", p.CalorieGoal)
	}
}
