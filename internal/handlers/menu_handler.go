package handlers

import (
    "fmt"
    "net/http"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/jsmidelov/TomasosTre/internal/models"
)

// MenuHandler manages dishes and ingredients.
type MenuHandler struct {
    db *gorm.DB
}

func NewMenuHandler(db *gorm.DB) *MenuHandler {
    return &MenuHandler{db: db}
}

type CreateIngredientRequest struct {

    Name  string  `json:"name" binding:"required"`
    Price float64 `json:"price" binding:"gte=0"`
}

type CreateDishRequest struct {

    Name          string  `json:"name" binding:"required"`
    Price         float64 `json:"price" binding:"required,gt=0"`
    IngredientIDs []uint  `json:"ingredient_ids"`
}

type DishResponse struct {
    models.Dish
    IngredientIDs []uint `json:"IngredientIDs"`
}

func (h *MenuHandler) CreateIngredient(c *gin.Context) {
    var req CreateIngredientRequest

    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    ingredient := models.Ingredient{Name: req.Name, Price: req.Price}

    if err := h.db.Create(&ingredient).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusCreated, ingredient)
}

func (h *MenuHandler) CreateDish(c *gin.Context) {
    var req CreateDishRequest

    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    if len(req.IngredientIDs) > 0 {
        var found []models.Ingredient
        if err := h.db.Where("id IN ?", req.IngredientIDs).Find(&found).Error; err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
            return
        }

        known := make(map[uint]bool, len(found))
        for _, i := range found {
            known[i.ID] = true
        }
        for _, id := range req.IngredientIDs {
            if !known[id] {
                errorMessage := fmt.Sprintf("Ingredient not found with ID: %d", id)
                c.JSON(http.StatusNotFound, gin.H{"error": errorMessage})
                return
            }
        }
    }

    dish := models.Dish{Name: req.Name, Price: req.Price}

    err := h.db.Transaction(func(tx *gorm.DB) error {
        if err := tx.Create(&dish).Error; err != nil {
            return err
        }

        seen := map[uint]bool{}
        var links []models.DishIngredient
        for _, id := range req.IngredientIDs {
            if seen[id] {
                continue
            }
            seen[id] = true
            links = append(links, models.DishIngredient{DishID: dish.ID, IngredientID: id})
        }
        if len(links) == 0 {
            return nil
        }
        return tx.CreateInBatches(&links, len(links)).Error
    })
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusCreated, DishResponse{Dish: dish, IngredientIDs: req.IngredientIDs})
}
