package tools

import (
	"context"
	"encoding/json"

	"github.com/pampalabs/gabriela/internal/storage"

	"github.com/google/uuid"
)

// SetMealTool records the meal planned for a date.
type SetMealTool struct {
	Store storage.Store
}

func (t *SetMealTool) Name() string { return "set_meal" }

func (t *SetMealTool) Description() string {
	return "Sets the meal plan for a specific date with optional toppings and the team member who set it."
}

func (t *SetMealTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"meal": {"type": "string", "description": "The name of the meal."},
			"date": {"type": "string", "description": "The date of the meal plan (YYYY-MM-DD)."},
			"toppings": {"type": "array", "items": {"type": "string"}, "description": "Optional list of toppings for the meal."},
			"team_member": {"type": "string", "description": "The team member who set the meal plan. 'Assistant' cannot be a team member."}
		},
		"required": ["meal", "date", "team_member"]
	}`)
}

func (t *SetMealTool) Invoke(ctx context.Context, _ string, args json.RawMessage) Result {
	var in struct {
		Meal       string   `json:"meal"`
		Date       string   `json:"date"`
		Toppings   []string `json:"toppings"`
		TeamMember string   `json:"team_member"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failf("Error: could not parse arguments for %s: %s", t.Name(), err)
	}
	if in.Meal == "" || in.Date == "" || in.TeamMember == "" {
		return failf("Error: meal, date and team_member are required")
	}

	plan := storage.MealPlan{
		ID:         uuid.New(),
		Meal:       in.Meal,
		Date:       in.Date,
		Toppings:   in.Toppings,
		TeamMember: in.TeamMember,
	}
	if err := t.Store.AddMeal(ctx, plan); err != nil {
		return failf("Error setting meal plan: %s", err)
	}
	return okf("Meal plan for %s set successfully by %s", in.Date, in.TeamMember)
}

// GetMealsTool lists meal plans, optionally filtered by date.
type GetMealsTool struct {
	Store storage.Store
}

func (t *GetMealsTool) Name() string { return "get_meals" }

func (t *GetMealsTool) Description() string {
	return "Retrieves meal plans, optionally filtered by date."
}

func (t *GetMealsTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"date": {"type": "string", "description": "Optional date filter (YYYY-MM-DD)."}
		}
	}`)
}

func (t *GetMealsTool) Invoke(ctx context.Context, _ string, args json.RawMessage) Result {
	var in struct {
		Date string `json:"date"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return failf("Error: could not parse arguments for %s: %s", t.Name(), err)
		}
	}

	meals, err := t.Store.GetMeals(ctx, in.Date)
	if err != nil {
		return failf("Error retrieving meal plans: %s", err)
	}
	if len(meals) == 0 {
		return ok("No meal plans found")
	}
	return okJSON(meals)
}
