package models

import (
	"time"

	"gorm.io/datatypes"
)

type RecipeIngredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
	Have   bool   `json:"have"`
}

// SavedRecipe keeps generated recipes so users can come back to them.
type SavedRecipe struct {
	ID            string                                `gorm:"column:id;type:uuid;primary_key" json:"id"`
	ExternalID    int64                                 `gorm:"column:external_id;not null;index:idx_recipe_owner_created,priority:1" json:"external_id"`
	Title         string                                `gorm:"column:title;type:varchar(500);not null" json:"title"`
	Ingredients   datatypes.JSONSlice[RecipeIngredient] `gorm:"column:ingredients;type:jsonb" json:"ingredients"`
	Instructions  string                                `gorm:"column:instructions;type:text;not null" json:"instructions"`
	Calories      *int                                  `gorm:"column:calories" json:"calories"`
	Proteins      *float64                              `gorm:"column:proteins" json:"proteins"`
	Fats          *float64                              `gorm:"column:fats" json:"fats"`
	Carbs         *float64                              `gorm:"column:carbs" json:"carbs"`
	EstimatedCost *float64                              `gorm:"column:estimated_cost" json:"estimated_cost"`
	CookingTime   *int                                  `gorm:"column:cooking_time" json:"cooking_time"`
	CreatedAt     time.Time                             `gorm:"index:idx_recipe_owner_created,priority:2,sort:desc" json:"created_at"`
}

func (SavedRecipe) TableName() string {
	return "saved_recipe"
}
