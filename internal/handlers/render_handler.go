package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jsmidelov/TomasosTre/internal/auth"
	"github.com/jsmidelov/TomasosTre/internal/cart"
	"github.com/jsmidelov/TomasosTre/internal/metrics"
	"github.com/jsmidelov/TomasosTre/internal/middleware"
	"github.com/jsmidelov/TomasosTre/internal/models"
	"github.com/jsmidelov/TomasosTre/internal/notifier"
)

const notifyTimeout = 30 * time.Second

// RenderHandler serves the ordering pages and partials.
type RenderHandler struct {
	db       *gorm.DB
	identity auth.Identity
	carts    cart.Provider
	notifier notifier.Notifier
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*RenderHandler)

// WithClock replaces time.Now, which decides whether a card has expired.
func WithClock(now func() time.Time) Option {
	return func(h *RenderHandler) { h.now = now }
}

func NewRenderHandler(db *gorm.DB, identity auth.Identity, carts cart.Provider, n notifier.Notifier, log *zap.Logger, opts ...Option) *RenderHandler {
	h := &RenderHandler{
		db:       db,
		identity: identity,
		carts:    carts,
		notifier: n,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Index renders the menu together with whatever cart a returning visitor left behind.
func (h *RenderHandler) Index(c *gin.Context) {
	model := IndexViewModel{
		Cart:              CartViewModel{OrderRows: []models.OrderRow{}},
		DishCustomization: DishCustomizationViewModel{},
	}

	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&model.Dishes).Error; err != nil {
		h.fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load dishes: %w", err), "")
		return
	}

	rows, err := h.carts(c).OrderRows()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}
	model.Cart.OrderRows = rows
	model.Cart.PriceSum = cart.Sum(rows)

	c.HTML(http.StatusOK, "index.html", model)
}

func (h *RenderHandler) CartPartial(c *gin.Context) {
	rows, err := h.carts(c).OrderRows()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	c.HTML(http.StatusOK, "cart.html", CartViewModel{OrderRows: rows, PriceSum: cart.Sum(rows)})
}

func (h *RenderHandler) DishCustomizePartial(c *gin.Context) {
	dishID, err := strconv.ParseUint(c.Query("id"), 10, 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid dish id %q: %w", c.Query("id"), err), "Invalid dish id")
		return
	}

	dish, ingredients, defaults, ok := h.loadDish(c, uint(dishID))
	if !ok {
		return
	}

	model := DishCustomizationViewModel{Dish: &dish}
	for _, i := range ingredients {
		model.DishIngredients = append(model.DishIngredients, DishIngredientChoice{
			ID:        i.ID,
			Name:      i.Name,
			Price:     i.Price,
			IsChecked: defaults[i.ID],
		})
	}

	c.HTML(http.StatusOK, "dish_customizer.html", model)
}

// AddToCart puts a customized dish in the cart and renders the updated cart.
func (h *RenderHandler) AddToCart(c *gin.Context) {
	dishID, err := strconv.ParseUint(c.PostForm("id"), 10, 64)
	if err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid dish id %q: %w", c.PostForm("id"), err), "Invalid dish id")
		return
	}

	amount, err := strconv.Atoi(c.DefaultPostForm("amount", "1"))
	if err != nil || amount < 1 {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid amount %q", c.PostForm("amount")), "Amount must be a positive number")
		return
	}

	chosen := map[uint]bool{}
	for _, raw := range c.PostFormArray("ingredients") {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid ingredient id %q: %w", raw, err), "Invalid ingredient id")
			return
		}
		chosen[uint(id)] = true
	}

	dish, ingredients, defaults, ok := h.loadDish(c, uint(dishID))
	if !ok {
		return
	}

	store := h.carts(c)
	rows, err := store.OrderRows()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}
	extras, err := store.OrderRowIngredients()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	rows = append(rows, models.OrderRow{DishID: dish.ID, Dish: dish, Amount: amount})
	extras = append(extras, cart.Customize(len(rows)-1, ingredients, defaults, chosen)...)

	if err := store.SaveOrderRows(rows); err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}
	if err := store.SaveOrderRowIngredients(extras); err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	c.HTML(http.StatusOK, "cart.html", CartViewModel{OrderRows: rows, PriceSum: cart.Sum(rows)})
}

// loadDish fetches a dish, every ingredient and the dish's default
// ingredients. It writes the error response itself and reports false on failure.
func (h *RenderHandler) loadDish(c *gin.Context, id uint) (models.Dish, []models.Ingredient, map[uint]bool, bool) {
	tx := h.db.WithContext(c.Request.Context())

	var dish models.Dish
	if err := tx.First(&dish, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail(c, http.StatusNotFound, fmt.Errorf("dish %d not found", id), "Dish not found")
		} else {
			h.fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load dish %d: %w", id, err), "")
		}
		return dish, nil, nil, false
	}

	var ingredients []models.Ingredient
	if err := tx.Order("id").Find(&ingredients).Error; err != nil {
		h.fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load ingredients: %w", err), "")
		return dish, nil, nil, false
	}

	var links []models.DishIngredient
	if err := tx.Where("dish_id = ?", dish.ID).Find(&links).Error; err != nil {
		h.fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load ingredients of dish %d: %w", id, err), "")
		return dish, nil, nil, false
	}

	defaults := make(map[uint]bool, len(links))
	for _, link := range links {
		defaults[link.IngredientID] = true
	}
	return dish, ingredients, defaults, true
}

// CheckoutPartial renders the checkout form, prefilled from the signed-in
// customer's profile and otherwise from the saved draft.
func (h *RenderHandler) CheckoutPartial(c *gin.Context) {
	draft, err := h.carts(c).Checkout()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	customer, err := h.identity.CurrentCustomer(c)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	model := CheckoutViewModel{
		Address: draft.Address,
		City:    draft.City,
		Email:   draft.Email,
		Zip:     draft.Zip,
	}
	if customer != nil {
		model.SignedIn = true
		model.Address = preferProfile(customer.Address, draft.Address)
		model.City = preferProfile(customer.City, draft.City)
		model.Email = preferProfile(customer.Email, draft.Email)
		model.Zip = preferProfile(customer.Zip, draft.Zip)
	}

	c.HTML(http.StatusOK, "checkout.html", model)
}

func preferProfile(profile, draft string) string {
	if profile != "" {
		return profile
	}
	return draft
}

// Order places the visitor's cart as an order.
func (h *RenderHandler) Order(c *gin.Context) {
	var form CheckoutForm
	if err := c.ShouldBind(&form); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid checkout form: %w", err), "Invalid checkout form")
		return
	}

	store := h.carts(c)
	now := h.now()

	expires, err := ParseExpiry(form.ExpiryMonth)
	if err != nil || !now.Before(expires) {
		h.log.Info("card rejected at checkout",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("expiry_month", form.ExpiryMonth),
		)
		if err := store.SaveCheckout(models.Checkout{Address: form.Address, City: form.City, Email: form.Email, Zip: form.Zip}); err != nil {
			h.fail(c, http.StatusInternalServerError, err, "")
			return
		}
		c.Redirect(http.StatusFound, "/Render/CheckoutPartial")
		return
	}

	customer, err := h.identity.CurrentCustomer(c)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	rows, err := store.OrderRows()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}
	extras, err := store.OrderRowIngredients()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}
	if len(rows) == 0 {
		c.Redirect(http.StatusFound, "/Render/Index")
		return
	}

	order := models.Order{
		Date:        now,
		IsDelivered: false,
		Address:     form.Address,
		City:        form.City,
		Email:       form.Email,
		Zip:         form.Zip,
		Price:       cart.Total(rows, extras),
	}
	if customer != nil {
		order.CustomerID = &customer.ID
		order.Email = preferProfile(form.Email, customer.Email)
	}

	if err := h.saveOrder(c.Request.Context(), &order, rows, extras); err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	if err := store.Clear(); err != nil {
		h.fail(c, http.StatusInternalServerError, err, "")
		return
	}

	metrics.RecordOrder(order.Price)
	h.log.Info("order placed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.Uint("order_id", order.ID),
		zap.Float64("price", order.Price),
	)
	h.notify(order, customer)

	if form.IsRegistrating {
		c.Redirect(http.StatusFound, "/Account/Register?"+url.Values{"returnUrl": {"/Home/Confirmation"}}.Encode())
		return
	}

	c.HTML(http.StatusOK, "confirmation.html", &order)
}

// saveOrder writes the order, its rows and their ingredients in one transaction.
func (h *RenderHandler) saveOrder(ctx context.Context, order *models.Order, rows []models.OrderRow, extras []models.OrderRowIngredient) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range rows {
			rows[i].ID = 0
			rows[i].OrderID = order.ID
			if rows[i].DishID == 0 {
				rows[i].DishID = rows[i].Dish.ID
			}
			if err := tx.Omit(clause.Associations).Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("failed to create order row: %w", err)
			}
		}

		if len(extras) == 0 {
			return nil
		}
		for i := range extras {
			idx := extras[i].RowIndex
			if idx < 0 || idx >= len(rows) {
				return fmt.Errorf("ingredient %d refers to missing cart row %d", extras[i].IngredientID, idx)
			}
			extras[i].ID = 0
			extras[i].OrderID = order.ID
			extras[i].OrderRowID = rows[idx].ID
			if extras[i].IngredientID == 0 {
				extras[i].IngredientID = extras[i].Ingredient.ID
			}
		}
		if err := tx.Omit(clause.Associations).CreateInBatches(&extras, len(extras)).Error; err != nil {
			return fmt.Errorf("failed to create order row ingredients: %w", err)
		}
		return nil
	})
}

func (h *RenderHandler) notify(order models.Order, customer *models.Customer) {
	receipt := notifier.Receipt{OrderID: order.ID, Email: order.Email, Total: order.Price}
	if customer != nil {
		receipt.Name = customer.Name
		receipt.Phone = customer.Phone
	}

	go func(receipt notifier.Receipt) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := h.notifier.OrderPlaced(ctx, receipt); err != nil {
			h.log.Warn("failed to notify customer", zap.Uint("order_id", receipt.OrderID), zap.Error(err))
		}
	}(receipt)
}

// Confirmation is where customers land after registering at checkout.
func (h *RenderHandler) Confirmation(c *gin.Context) {
	c.HTML(http.StatusOK, "confirmation.html", (*models.Order)(nil))
}

func (h *RenderHandler) Error(c *gin.Context) {
	c.HTML(http.StatusOK, "error.html", ErrorViewModel{RequestID: middleware.GetRequestID(c)})
}

// fail logs err and renders the error view. message is shown to the visitor;
// when empty the view falls back to a generic text.
func (h *RenderHandler) fail(c *gin.Context, status int, err error, message string) {
	requestID := middleware.GetRequestID(c)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("request_id", requestID), zap.Error(err))
	} else {
		h.log.Info("request rejected", zap.String("request_id", requestID), zap.Error(err))
	}
	_ = c.Error(err)
	c.HTML(status, "error.html", ErrorViewModel{RequestID: requestID, Message: message})
}

// ParseExpiry reads a card expiry month as YYYY-MM, MM/YY or MM/YYYY, with or
// without a leading zero on the month, and returns the first instant the card is no longer valid.
func ParseExpiry(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"2006-01", "01/06", "01/2006", "1/06", "1/2006"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t.AddDate(0, 1, 0), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiry month %q", value)
}
