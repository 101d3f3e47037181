package models

import "time"

type Order struct {
    ID             uint      `gorm:"primaryKey"`
    Date           time.Time `gorm:"not null"`
    CustomerID     *uint     `gorm:"index"` // nil for guest checkouts
    Customer       *Customer
    Price          float64 `gorm:"not null"`
    IsDelivered    bool
    Address        string
    City           string
    Email          string
    Zip            string
    Rows           []OrderRow           `gorm:"foreignKey:OrderID"`
    RowIngredients []OrderRowIngredient `gorm:"foreignKey:OrderID"`
}

type OrderRow struct {
    ID      uint `gorm:"primaryKey"`
    OrderID uint `gorm:"index"`
    DishID  uint `gorm:"index;not null"`
    Dish    Dish
    Amount  int `gorm:"not null"`
}

// OrderRowIngredient is an ingredient added to or removed from a dish on an
// order row. Only extras are charged.
type OrderRowIngredient struct {
    ID           uint `gorm:"primaryKey"`
    OrderID      uint `gorm:"index"`
    OrderRowID   uint `gorm:"index"`
    IngredientID uint `gorm:"index;not null"`
    Ingredient   Ingredient
    IsExtra      bool

    // RowIndex locates the owning row in the session cart until the rows get IDs.
    RowIndex int `gorm:"-"`
}

// Checkout is the partially filled checkout form kept between requests.
type Checkout struct {
    Address string
    City    string
    Email   string
    Zip     string
}
