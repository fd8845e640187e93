package llm

const DefaultRecipeCount = 3

// Profile carries the dietary restrictions applied to every generation.
type Profile struct {
	Diet        string
	Allergies   []string
	Excluded    []string
	CalorieGoal int
}

type RecipeRequest struct {
	Products []string
	Count    int
	Profile  Profile
}

type MealPlanRequest struct {
	Profile Profile
}

type Ingredient struct {
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	Have       bool   `json:"have"`
	Substitute string `json:"substitute,omitempty"`
}

type Step struct {
	Step int    `json:"step"`
	Text string `json:"text"`
	Time string `json:"time,omitempty"`
}

// Recipe is one generated recipe. Numeric nutrition fields are per portion
// and nil when the model omitted them.
type Recipe struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	CookingTime   *float64     `json:"cooking_time"`
	Difficulty    string       `json:"difficulty"`
	Portions      *float64     `json:"portions"`
	Ingredients   []Ingredient `json:"ingredients"`
	Steps         []Step       `json:"steps"`
	Tips          string       `json:"tips"`
	Calories      *float64     `json:"calories"`
	Proteins      *float64     `json:"proteins"`
	Fats          *float64     `json:"fats"`
	Carbs         *float64     `json:"carbs"`
	EstimatedCost *float64     `json:"estimated_cost"`
}

type Meal struct {
	Title        string   `json:"title"`
	Calories     *float64 `json:"calories"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
}

type DayPlan struct {
	Day       string `json:"day"`
	Breakfast *Meal  `json:"breakfast"`
	Lunch     *Meal  `json:"lunch"`
	Dinner    *Meal  `json:"dinner"`
}

type MealPlan struct {
	Days                []DayPlan `json:"days"`
	ShoppingList        []string  `json:"shopping_list"`
	TotalWeeklyCalories *float64  `json:"total_weekly_calories"`
	TotalWeeklyCost     *float64  `json:"total_weekly_cost"`
}

var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
