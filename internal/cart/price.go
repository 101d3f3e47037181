package cart

import "github.com/jsmidelov/TomasosTre/internal/models"

// Sum is the price of the dishes in the cart.
func Sum(rows []models.OrderRow) float64 {
	var sum float64
	for _, row := range rows {
		sum += row.Dish.Price * float64(row.Amount)
	}
	return sum
}

// Total is the price of an order: the dishes plus every extra ingredient,
// each charged once.
func Total(rows []models.OrderRow, ingredients []models.OrderRowIngredient) float64 {
	total := Sum(rows)
	for _, ingredient := range ingredients {
		if ingredient.IsExtra {
			total += ingredient.Ingredient.Price
		}
	}
	return total
}

// Customize compares the ingredients a visitor picked for a dish with the
// dish's defaults. Picked non-defaults become extras, unpicked defaults are
// recorded as removed.
func Customize(rowIndex int, all []models.Ingredient, defaults map[uint]bool, chosen map[uint]bool) []models.OrderRowIngredient {
	var out []models.OrderRowIngredient
	for _, ingredient := range all {
		isDefault, isChosen := defaults[ingredient.ID], chosen[ingredient.ID]
		if isDefault == isChosen {
			continue
		}
		out = append(out, models.OrderRowIngredient{
			IngredientID: ingredient.ID,
			Ingredient:   ingredient,
			IsExtra:      isChosen,
			RowIndex:     rowIndex,
		})
	}
	return out
}
