package tracking

import (
	"fmt"

	apperrors "github.com/gmsas95/glucotrack/internal/errors"
)

// mainMeals must be logged in this order each day
var mainMeals = []MealType{Breakfast, Lunch, Dinner}

func mainMealIndex(m MealType) int {
	for i, mm := range mainMeals {
		if mm == m {
			return i
		}
	}
	return -1
}

// AvailableMeals returns the meal types that can be logged next given the
// meals already logged today: the main meal after the last one logged, if
// any, and Snacks, which are always available.
func AvailableMeals(existing []MealType) []MealType {
	next := lastMainMeal(existing) + 1

	out := make([]MealType, 0, 2)
	if next < len(mainMeals) {
		out = append(out, mainMeals[next])
	}
	return append(out, Snacks)
}

// lastMainMeal returns the highest main meal index in existing, or -1
func lastMainMeal(existing []MealType) int {
	last := -1
	for _, m := range existing {
		if i := mainMealIndex(m); i > last {
			last = i
		}
	}
	return last
}

// CheckMealOrder rejects a main meal that is not after the last main meal
// logged today
func CheckMealOrder(existing []MealType, mealType MealType) error {
	if mealType == Snacks {
		return nil
	}
	current := mainMealIndex(mealType)
	if current < 0 {
		return apperrors.New(apperrors.ErrValidation.Code, fmt.Sprintf("unknown meal type %q", mealType))
	}

	last := lastMainMeal(existing)
	if current > last {
		return nil
	}

	msg := fmt.Sprintf("You already logged %s today. Only Snacks can be logged.", mainMeals[last])
	if last+1 < len(mainMeals) {
		msg = fmt.Sprintf("You already logged %s today. Please log %s next.", mainMeals[last], mainMeals[last+1])
	}
	return apperrors.New(apperrors.ErrMealOrder.Code, msg)
}
