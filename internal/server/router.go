package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jsmidelov/TomasosTre/internal/auth"
	"github.com/jsmidelov/TomasosTre/internal/cart"
	"github.com/jsmidelov/TomasosTre/internal/handlers"
	"github.com/jsmidelov/TomasosTre/internal/metrics"
	"github.com/jsmidelov/TomasosTre/internal/middleware"
	"github.com/jsmidelov/TomasosTre/internal/notifier"
	"github.com/jsmidelov/TomasosTre/internal/web"
)

const sessionName = "gosess"

type Deps struct {
	DB            *gorm.DB
	Log           *zap.Logger
	SessionSecret string
	AllowOrigins  []string
	Notifier      notifier.Notifier
	// OIDC is optional; without it the /Account routes are not mounted.
	OIDC           *auth.OIDC
	HandlerOptions []handlers.Option
	// SessionStore defaults to NewSessionStore on DB without cleanup.
	SessionStore sessions.Store
}

// NewSessionStore keeps session values in the sessions table of conn. The
// cookie only carries the signed session ID, so carts are not bound by the
// browser's cookie size limit. With cleanup set, expired sessions are purged
// hourly in the background.
func NewSessionStore(conn *gorm.DB, secret string, cleanup bool) sessions.Store {
	return gormsessions.NewStore(conn, cleanup, []byte(secret))
}

func NewRouter(d Deps) *gin.Engine {
	if d.Notifier == nil {
		d.Notifier = notifier.Nop{}
	}

	r := gin.New()
	r.SetHTMLTemplate(web.Templates())

	r.Use(middleware.RequestID(), middleware.Logger(d.Log), middleware.Metrics())
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		d.Log.Error("panic recovered", zap.String("request_id", middleware.GetRequestID(c)), zap.Any("panic", recovered))
		c.HTML(http.StatusInternalServerError, "error.html", handlers.ErrorViewModel{RequestID: middleware.GetRequestID(c)})
	}))
	if len(d.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.AllowOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// ── session store ──
	store := d.SessionStore
	if store == nil {
		store = NewSessionStore(d.DB, d.SessionSecret, false)
	}
	r.Use(sessions.Sessions(sessionName, store))

	identity := auth.SessionIdentity{DB: d.DB}
	render := handlers.NewRenderHandler(d.DB, identity, cart.FromSession, d.Notifier, d.Log, d.HandlerOptions...)
	menu := handlers.NewMenuHandler(d.DB)

	// ── public endpoints ──
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/", render.Index)

	pages := r.Group("/Render")
	{
		pages.GET("/Index", render.Index)
		pages.GET("/CartPartial", render.CartPartial)
		pages.GET("/DishCustomizePartial", render.DishCustomizePartial)
		pages.POST("/AddToCart", render.AddToCart)
		pages.GET("/CheckoutPartial", render.CheckoutPartial)
		pages.POST("/Order", render.Order)
		pages.GET("/Error", render.Error)
	}
	r.GET("/Home/Confirmation", render.Confirmation)

	if d.OIDC != nil {
		account := r.Group("/Account")
		{
			account.GET("/Login", d.OIDC.Login)
			account.GET("/Register", d.OIDC.Register)
			account.GET("/Callback", d.OIDC.Callback)
		}
	}

	// ── protected API ──
	api := r.Group("/api")
	api.Use(auth.RequireAuth(identity))
	{
		api.POST("/dishes", menu.CreateDish)
		api.POST("/ingredients", menu.CreateIngredient)
	}

	r.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, "error.html", handlers.ErrorViewModel{
			RequestID: middleware.GetRequestID(c),
			Message:   "Page not found",
		})
	})

	return r
}
