package handlers

import "github.com/jsmidelov/TomasosTre/internal/models"

type IndexViewModel struct {
	Dishes            []models.Dish
	Cart              CartViewModel
	DishCustomization DishCustomizationViewModel
}

type CartViewModel struct {
	OrderRows []models.OrderRow
	PriceSum  float64
}

type DishCustomizationViewModel struct {
	Dish            *models.Dish
	DishIngredients []DishIngredientChoice
}

// DishIngredientChoice is one checkbox of the dish customizer.
type DishIngredientChoice struct {
	ID        uint
	Name      string
	Price     float64
	IsChecked bool
}

type CheckoutViewModel struct {
	Address  string
	City     string
	Email    string
	Zip      string
	SignedIn bool
}

// CheckoutForm is the body of POST /Render/Order.
type CheckoutForm struct {
	Address        string `form:"Address"`
	City           string `form:"City"`
	Email          string `form:"Email"`
	Zip            string `form:"Zip"`
	ExpiryMonth    string `form:"ExpiryMonth"`
	IsRegistrating bool   `form:"IsRegistrating"`
}

type ErrorViewModel struct {
	RequestID string
	Message   string
}
