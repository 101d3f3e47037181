package models

type Dish struct {
	ID    uint    `gorm:"primaryKey"`
	Name  string  `gorm:"uniqueIndex;not null"`
	Price float64 `gorm:"not null"`
}

type Ingredient struct {
	ID    uint    `gorm:"primaryKey"`
	Name  string  `gorm:"uniqueIndex;not null"`
	Price float64 `gorm:"not null"`
}

// DishIngredient marks an ingredient as part of a dish by default.
type DishIngredient struct {
	DishID       uint `gorm:"primaryKey"`
	IngredientID uint `gorm:"primaryKey"`
}
