package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jsmidelov/TomasosTre/internal/auth"
	"github.com/jsmidelov/TomasosTre/internal/db"
	"github.com/jsmidelov/TomasosTre/internal/handlers"
	"github.com/jsmidelov/TomasosTre/internal/middleware"
	"github.com/jsmidelov/TomasosTre/internal/models"
	"github.com/jsmidelov/TomasosTre/internal/notifier"
	"github.com/jsmidelov/TomasosTre/internal/server"
)

const testSecret = "test-secret-key"

var testNow = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.Local)

type recordingNotifier struct {
	receipts chan notifier.Receipt
}

func (r *recordingNotifier) OrderPlaced(_ context.Context, receipt notifier.Receipt) error {
	r.receipts <- receipt
	return nil
}

type menu struct {
	capricciosa, margherita models.Dish
	cheese, ham             models.Ingredient
}

func setupRenderTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *recordingNotifier) {
	gin.SetMode(gin.TestMode)

	// Each test gets its own in-memory SQLite database
	testDB, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database: " + err.Error())
	}
	require.NoError(t, db.Migrate(testDB))

	n := &recordingNotifier{receipts: make(chan notifier.Receipt, 4)}
	r := server.NewRouter(server.Deps{
		DB:             testDB,
		Log:            zap.NewNop(),
		SessionSecret:  testSecret,
		Notifier:       n,
		HandlerOptions: []handlers.Option{handlers.WithClock(func() time.Time { return testNow })},
	})

	return r, testDB, n
}

func seedMenu(t *testing.T, testDB *gorm.DB) menu {
	m := menu{
		capricciosa: models.Dish{Name: "Capricciosa", Price: 10},
		margherita:  models.Dish{Name: "Margherita", Price: 5},
		cheese:      models.Ingredient{Name: "Cheese", Price: 1},
		ham:         models.Ingredient{Name: "Ham", Price: 2},
	}
	require.NoError(t, testDB.Create(&m.capricciosa).Error)
	require.NoError(t, testDB.Create(&m.margherita).Error)
	require.NoError(t, testDB.Create(&m.cheese).Error)
	require.NoError(t, testDB.Create(&m.ham).Error)
	require.NoError(t, testDB.Create(&models.DishIngredient{DishID: m.capricciosa.ID, IngredientID: m.cheese.ID}).Error)
	return m
}

func (m menu) cartRows() []models.OrderRow {
	return []models.OrderRow{
		{DishID: m.capricciosa.ID, Dish: m.capricciosa, Amount: 2},
		{DishID: m.margherita.ID, Dish: m.margherita, Amount: 1},
	}
}

// sessionCookie stores a session holding the given values in testDB and
// returns the cookie that points at it.
func sessionCookie(t *testing.T, testDB *gorm.DB, values map[string]any) string {
	tempW := httptest.NewRecorder()
	tempC, _ := gin.CreateTestContext(tempW)
	tempC.Request = httptest.NewRequest(http.MethodGet, "/", nil) // Dummy request for context
	sessions.Sessions("gosess", server.NewSessionStore(testDB, testSecret, false))(tempC)

	session := sessions.Default(tempC)
	for k, v := range values {
		session.Set(k, v)
	}
	require.NoError(t, session.Save())

	return cookieHeader(tempW)
}

// cookieHeader turns a response's cookies into a request Cookie header. A
// session saved twice in one request sets its cookie twice; the last one wins,
// as in a browser.
func cookieHeader(recorder *httptest.ResponseRecorder) string {
	latest := map[string]string{}
	var names []string
	for _, c := range recorder.Result().Cookies() {
		if _, seen := latest[c.Name]; !seen {
			names = append(names, c.Name)
		}
		latest[c.Name] = c.Value
	}

	var parts []string
	for _, name := range names {
		parts = append(parts, name+"="+latest[name])
	}
	return strings.Join(parts, "; ")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func jsonString(t *testing.T, v any) string {
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return string(payload)
}

func get(router *gin.Engine, path, sessCookie string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sessCookie != "" {
		req.Header.Set("Cookie", sessCookie)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func postForm(router *gin.Engine, path string, form url.Values, sessCookie string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sessCookie != "" {
		req.Header.Set("Cookie", sessCookie)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestIndexHandler(t *testing.T) {
	router, testDB, _ := setupRenderTestRouter(t)
	m := seedMenu(t, testDB)

	t.Run("Renders the menu with an empty cart", func(t *testing.T) {
		recorder := get(router, "/Render/Index", "")

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "Capricciosa")
		assert.Contains(t, recorder.Body.String(), "Margherita")
		assert.Contains(t, recorder.Body.String(), `data-price-sum="0.00"`)
	})

	t.Run("Restores a returning visitor's cart", func(t *testing.T) {
		sessCookie := sessionCookie(t, testDB, map[string]any{"Order": jsonString(t, m.cartRows())})
		recorder := get(router, "/", sessCookie)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `data-price-sum="25.00"`)
		assert.Contains(t, recorder.Body.String(), "2 x Capricciosa")
	})

	t.Run("Returns 500 with a request ID for a malformed cart", func(t *testing.T) {
		sessCookie := sessionCookie(t, testDB, map[string]any{"Order": "[{broken"})
		recorder := get(router, "/Render/Index", sessCookie)

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		requestID := recorder.Header().Get(middleware.RequestIDHeader)
		assert.NotEmpty(t, requestID)
		assert.Contains(t, recorder.Body.String(), requestID)
	})
}

func TestCartPartialHandler(t *testing.T) {
	router, testDB, _ := setupRenderTestRouter(t)
	m := seedMenu(t, testDB)

	t.Run("Sums dish price times amount", func(t *testing.T) {
		sessCookie := sessionCookie(t, testDB, map[string]any{"Order": jsonString(t, m.cartRows())})
		recorder := get(router, "/Render/CartPartial", sessCookie)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), `data-price-sum="25.00"`)
		assert.NotContains(t, recorder.Body.String(), "<html")
	})

	t.Run("Empty session renders an empty cart", func(t *testing.T) {
		recorder := get(router, "/Render/CartPartial", "")

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "Your cart is empty")
	})
}

func TestDishCustomizePartialHandler(t *testing.T) {
	router, testDB, _ := setupRenderTestRouter(t)
	m := seedMenu(t, testDB)

	t.Run("Checks the dish's own ingredients", func(t *testing.T) {
		recorder := get(router, "/Render/DishCustomizePartial?id="+itoa(m.capricciosa.ID), "")

		assert.Equal(t, http.StatusOK, recorder.Code)
		body := recorder.Body.String()
		assert.Contains(t, body, "Capricciosa")
		assert.Contains(t, body, `data-ingredient-id="`+itoa(m.cheese.ID)+`" checked>`)
		assert.Contains(t, body, `data-ingredient-id="`+itoa(m.ham.ID)+`">`)
	})

	t.Run("Returns 404 for an unknown dish", func(t *testing.T) {
		recorder := get(router, "/Render/DishCustomizePartial?id=9999", "")

		assert.Equal(t, http.StatusNotFound, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "Dish not found")
	})

	t.Run("Returns 400 for a non-numeric id", func(t *testing.T) {
		recorder := get(router, "/Render/DishCustomizePartial?id=abc", "")

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestAddToCartHandler(t *testing.T) {
	router, testDB, _ := setupRenderTestRouter(t)
	m := seedMenu(t, testDB)

	recorder := postForm(router, "/Render/AddToCart", url.Values{
		"id":          {itoa(m.capricciosa.ID)},
		"amount":      {"2"},
		"ingredients": {itoa(m.cheese.ID), itoa(m.ham.ID)},
	}, "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `data-price-sum="20.00"`)

	follow := get(router, "/Render/CartPartial", cookieHeader(recorder))
	assert.Contains(t, follow.Body.String(), "2 x Capricciosa")

	t.Run("Returns 404 for an unknown dish", func(t *testing.T) {
		recorder := postForm(router, "/Render/AddToCart", url.Values{"id": {"9999"}}, "")

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("Returns 400 for a zero amount", func(t *testing.T) {
		recorder := postForm(router, "/Render/AddToCart", url.Values{"id": {itoa(m.margherita.ID)}, "amount": {"0"}}, "")

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestCheckoutPartialHandler(t *testing.T) {
	router, testDB, _ := setupRenderTestRouter(t)

	customer := models.Customer{Name: "Anna", Email: "anna@example.com", Address: "Storgatan 1", City: "Uppsala"}
	require.NoError(t, testDB.Create(&customer).Error)

	draft := models.Checkout{Address: "Draft road 9", City: "Draftville", Email: "draft@example.com", Zip: "11122"}

	t.Run("Anonymous visitors get their draft back", func(t *testing.T) {
		sessCookie := sessionCookie(t, testDB, map[string]any{"Checkout": jsonString(t, draft)})
		recorder := get(router, "/Render/CheckoutPartial", sessCookie)

		assert.Equal(t, http.StatusOK, recorder.Code)
		body := recorder.Body.String()
		assert.Contains(t, body, `value="Draft road 9"`)
		assert.Contains(t, body, `value="draft@example.com"`)
		assert.Contains(t, body, "IsRegistrating")
	})

	t.Run("Profile fields take precedence over the draft", func(t *testing.T) {
		sessCookie := sessionCookie(t, testDB, map[string]any{
			"Checkout":         jsonString(t, draft),
			auth.CustomerIDKey: customer.ID,
		})
		recorder := get(router, "/Render/CheckoutPartial", sessCookie)

		assert.Equal(t, http.StatusOK, recorder.Code)
		body := recorder.Body.String()
		assert.Contains(t, body, `value="Storgatan 1"`)
		assert.Contains(t, body, `value="Uppsala"`)
		assert.Contains(t, body, `value="anna@example.com"`)
		assert.NotContains(t, body, "Draft road 9")
		// The profile has no zip, so the draft's is kept.
		assert.Contains(t, body, `value="11122"`)
		assert.NotContains(t, body, "IsRegistrating")
	})
}

func TestOrderHandler(t *testing.T) {
	router, testDB, n := setupRenderTestRouter(t)
	m := seedMenu(t, testDB)

	customer := models.Customer{Name: "Anna", Email: "anna@example.com", Phone: "+46700000000"}
	require.NoError(t, testDB.Create(&customer).Error)

	extras := []models.OrderRowIngredient{
		{IngredientID: m.ham.ID, Ingredient: m.ham, IsExtra: true, RowIndex: 0},
		{IngredientID: m.cheese.ID, Ingredient: m.cheese, IsExtra: false, RowIndex: 1},
	}
	fullCart := func(withCustomer bool) string {
		values := map[string]any{
			"Order":               jsonString(t, m.cartRows()),
			"OrderRowIngredients": jsonString(t, extras),
			"Checkout":            jsonString(t, models.Checkout{Address: "Draft road 9", City: "Draftville"}),
		}
		if withCustomer {
			values[auth.CustomerIDKey] = customer.ID
		}
		return sessionCookie(t, testDB, values)
	}
	countOrders := func() int64 {
		var count int64
		testDB.Model(&models.Order{}).Count(&count)
		return count
	}

	t.Run("Expired card redirects to checkout without saving", func(t *testing.T) {
		form := url.Values{"Address": {"Storgatan 1"}, "City": {"Uppsala"}, "ExpiryMonth": {"2026-09"}}
		recorder := postForm(router, "/Render/Order", form, fullCart(true))

		assert.Equal(t, http.StatusFound, recorder.Code)
		assert.Equal(t, "/Render/CheckoutPartial", recorder.Header().Get("Location"))
		assert.Equal(t, int64(0), countOrders())

		// The typed address is kept as the checkout draft, the cart survives.
		follow := get(router, "/Render/CheckoutPartial", cookieHeader(recorder))
		assert.Contains(t, follow.Body.String(), `value="Storgatan 1"`)
		cart := get(router, "/Render/CartPartial", cookieHeader(recorder))
		assert.Contains(t, cart.Body.String(), `data-price-sum="25.00"`)
	})

	t.Run("Unreadable expiry is treated as expired", func(t *testing.T) {
		recorder := postForm(router, "/Render/Order", url.Values{"ExpiryMonth": {"soon"}}, fullCart(true))

		assert.Equal(t, http.StatusFound, recorder.Code)
		assert.Equal(t, int64(0), countOrders())
	})

	t.Run("Empty cart goes back to the menu", func(t *testing.T) {
		recorder := postForm(router, "/Render/Order", url.Values{"ExpiryMonth": {"2027-01"}}, "")

		assert.Equal(t, http.StatusFound, recorder.Code)
		assert.Equal(t, "/Render/Index", recorder.Header().Get("Location"))
		assert.Equal(t, int64(0), countOrders())
	})

	t.Run("Places the order and clears the cart", func(t *testing.T) {
		form := url.Values{"Address": {"Storgatan 1"}, "City": {"Uppsala"}, "Zip": {"75220"}, "ExpiryMonth": {"2026-10"}}
		recorder := postForm(router, "/Render/Order", form, fullCart(true))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "Thank you for your order")
		assert.Contains(t, recorder.Body.String(), `<span class="order-price">27.00</span>`)

		var stored models.Order
		require.NoError(t, testDB.Preload("Rows").Preload("RowIngredients").First(&stored).Error)
		assert.InDelta(t, 27.0, stored.Price, 0.001)
		assert.False(t, stored.IsDelivered)
		assert.True(t, stored.Date.Equal(testNow))
		require.NotNil(t, stored.CustomerID)
		assert.Equal(t, customer.ID, *stored.CustomerID)
		assert.Equal(t, "anna@example.com", stored.Email)
		assert.Equal(t, "75220", stored.Zip)

		require.Len(t, stored.Rows, 2)
		assert.Equal(t, m.capricciosa.ID, stored.Rows[0].DishID)
		assert.Equal(t, 2, stored.Rows[0].Amount)
		require.Len(t, stored.RowIngredients, 2)
		for _, ingredient := range stored.RowIngredients {
			if ingredient.IngredientID == m.ham.ID {
				assert.True(t, ingredient.IsExtra)
				assert.Equal(t, stored.Rows[0].ID, ingredient.OrderRowID)
			} else {
				assert.False(t, ingredient.IsExtra)
				assert.Equal(t, stored.Rows[1].ID, ingredient.OrderRowID)
			}
		}

		select {
		case receipt := <-n.receipts:
			assert.Equal(t, stored.ID, receipt.OrderID)
			assert.Equal(t, "+46700000000", receipt.Phone)
			assert.InDelta(t, 27.0, receipt.Total, 0.001)
		case <-time.After(2 * time.Second):
			t.Fatal("no order notification sent")
		}

		// The cleared session still knows who is signed in.
		next := cookieHeader(recorder)
		cart := get(router, "/Render/CartPartial", next)
		assert.Contains(t, cart.Body.String(), "Your cart is empty")
		checkout := get(router, "/Render/CheckoutPartial", next)
		assert.Contains(t, checkout.Body.String(), `value="anna@example.com"`)
	})

	t.Run("Guest order drops the checkout draft", func(t *testing.T) {
		form := url.Values{"Address": {"Gästvägen 2"}, "Email": {"walkin@example.com"}, "ExpiryMonth": {"2027-01"}}
		recorder := postForm(router, "/Render/Order", form, fullCart(false))

		assert.Equal(t, http.StatusOK, recorder.Code)
		<-n.receipts

		checkout := get(router, "/Render/CheckoutPartial", cookieHeader(recorder))
		body := checkout.Body.String()
		assert.Contains(t, body, `name="Address" value=""`)
		assert.Contains(t, body, `name="City" value=""`)
		assert.NotContains(t, body, "Draft road 9")
		assert.NotContains(t, body, "Gästvägen 2")
	})

	t.Run("Guests who register are sent to the sign-up page", func(t *testing.T) {
		form := url.Values{"Email": {"guest@example.com"}, "ExpiryMonth": {"11/27"}, "IsRegistrating": {"true"}}
		recorder := postForm(router, "/Render/Order", form, fullCart(false))

		assert.Equal(t, http.StatusFound, recorder.Code)
		assert.Equal(t, "/Account/Register?returnUrl=%2FHome%2FConfirmation", recorder.Header().Get("Location"))

		var guest models.Order
		require.NoError(t, testDB.Where("email = ?", "guest@example.com").First(&guest).Error)
		assert.Nil(t, guest.CustomerID)
		assert.InDelta(t, 27.0, guest.Price, 0.001)
		<-n.receipts
	})
}

func TestOrderHandlerLargeCart(t *testing.T) {
	router, testDB, n := setupRenderTestRouter(t)
	m := seedMenu(t, testDB)
	olives := models.Ingredient{Name: "Olives", Price: 3}
	basil := models.Ingredient{Name: "Basil", Price: 1}
	require.NoError(t, testDB.Create(&olives).Error)
	require.NoError(t, testDB.Create(&basil).Error)

	sessCookie := ""
	for i := 0; i < 12; i++ {
		recorder := postForm(router, "/Render/AddToCart", url.Values{
			"id":          {itoa(m.capricciosa.ID)},
			"ingredients": {itoa(m.cheese.ID), itoa(m.ham.ID), itoa(olives.ID), itoa(basil.ID)},
		}, sessCookie)
		require.Equal(t, http.StatusOK, recorder.Code, "add #%d", i+1)
		sessCookie = cookieHeader(recorder)
	}

	recorder := postForm(router, "/Render/Order", url.Values{"Email": {"party@example.com"}, "ExpiryMonth": {"2027-01"}}, sessCookie)

	assert.Equal(t, http.StatusOK, recorder.Code)
	// 12 x (10 + ham 2 + olives 3 + basil 1)
	assert.Contains(t, recorder.Body.String(), `<span class="order-price">192.00</span>`)

	var stored models.Order
	require.NoError(t, testDB.Preload("Rows").Preload("RowIngredients").First(&stored).Error)
	assert.Len(t, stored.Rows, 12)
	assert.Len(t, stored.RowIngredients, 36)
	<-n.receipts
}

func TestErrorHandler(t *testing.T) {
	router, _, _ := setupRenderTestRouter(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Render/Error", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-42")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `<code class="request-id">trace-42</code>`)
}

func TestParseExpiry(t *testing.T) {
	got, err := handlers.ParseExpiry("2026-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.November, 1, 0, 0, 0, 0, time.Local), got)

	got, err = handlers.ParseExpiry("03/27")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, time.April, 1, 0, 0, 0, 0, time.Local), got)

	got, err = handlers.ParseExpiry("3/27")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, time.April, 1, 0, 0, 0, 0, time.Local), got)

	got, err = handlers.ParseExpiry("3/2027")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, time.April, 1, 0, 0, 0, 0, time.Local), got)

	_, err = handlers.ParseExpiry("")
	assert.Error(t, err)
}
