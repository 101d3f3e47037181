package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	config "github.com/jsmidelov/TomasosTre/configs"
	"github.com/jsmidelov/TomasosTre/internal/models"
)

const (
	CustomerIDKey = "customer_id"
	stateKey      = "oidc_state"
	returnURLKey  = "return_url"
)

// Identity tells who, if anyone, is signed in on a request.
type Identity interface {
	// CurrentCustomer returns nil without an error for anonymous visitors.
	CurrentCustomer(c *gin.Context) (*models.Customer, error)
}

// SessionIdentity resolves the customer ID stored in the session by Callback.
type SessionIdentity struct {
	DB *gorm.DB
}

func (s SessionIdentity) CurrentCustomer(c *gin.Context) (*models.Customer, error) {
	custID, ok := sessions.Default(c).Get(CustomerIDKey).(uint)
	if !ok || custID == 0 {
		return nil, nil
	}

	var cust models.Customer
	if err := s.DB.WithContext(c.Request.Context()).First(&cust, custID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load customer %d: %w", custID, err)
	}
	return &cust, nil
}

// Middleware: ensures user is logged in and injects *models.Customer into context.
func RequireAuth(identity Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		cust, err := identity.CurrentCustomer(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		if cust == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		// put on context for handlers
		c.Set("customer", cust)
		c.Next()
	}
}

// OIDC signs customers in with an OpenID Connect provider.
type OIDC struct {
	db           *gorm.DB
	log          *zap.Logger
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

func NewOIDC(ctx context.Context, cfg config.OIDCConfig, db *gorm.DB, log *zap.Logger) (*OIDC, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("OIDC provider init error: %w", err)
	}

	return &OIDC{
		db:       db,
		log:      log,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", "phone", "address"},
		},
	}, nil
}

// GET /Account/Login
func (o *OIDC) Login(c *gin.Context) {
	o.redirectToProvider(c)
}

// GET /Account/Register sends the visitor to the provider's sign-up page.
func (o *OIDC) Register(c *gin.Context) {
	o.redirectToProvider(c, oauth2.SetAuthURLParam("prompt", "create"))
}

func (o *OIDC) redirectToProvider(c *gin.Context, opts ...oauth2.AuthCodeOption) {
	state := uuid.NewString()

	sess := sessions.Default(c)
	sess.Set(stateKey, state)
	sess.Set(returnURLKey, safeReturnURL(c.Query("returnUrl")))
	if err := sess.Save(); err != nil {
		o.log.Error("failed to save session", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Redirect(http.StatusFound, o.oauth2Config.AuthCodeURL(state, opts...))
}

// GET /Account/Callback
func (o *OIDC) Callback(c *gin.Context) {
	sess := sessions.Default(c)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code missing"})
		return
	}
	if want, _ := sess.Get(stateKey).(string); want == "" || want != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
		return
	}

	ctx := c.Request.Context()
	oauth2Token, err := o.oauth2Config.Exchange(ctx, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token exchange failed"})
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no id_token in token response"})
		return
	}

	idToken, err := o.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token verification failed"})
		return
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claims parse error"})
		return
	}

	cust, err := UpsertCustomer(o.db.WithContext(ctx), claims)
	if err != nil {
		o.log.Error("failed to upsert customer", zap.String("sub", claims.Sub), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store customer"})
		return
	}

	returnURL, _ := sess.Get(returnURLKey).(string)
	sess.Delete(stateKey)
	sess.Delete(returnURLKey)
	sess.Set(CustomerIDKey, cust.ID)
	if err := sess.Save(); err != nil {
		o.log.Error("failed to save session", zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Redirect(http.StatusFound, safeReturnURL(returnURL))
}

// Claims are the ID token claims copied onto the customer profile.
type Claims struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone_number"`
	Address struct {
		Street     string `json:"street_address"`
		Locality   string `json:"locality"`
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

// UpsertCustomer finds the customer for an OIDC subject, creating it on first
// sign-in.
func UpsertCustomer(db *gorm.DB, claims Claims) (*models.Customer, error) {
	var cust models.Customer
	err := db.Where(&models.Customer{OIDCID: claims.Sub}).First(&cust).Error
	if err == nil {
		return &cust, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cust = models.Customer{
		OIDCID:  claims.Sub,
		Name:    claims.Name,
		Email:   claims.Email,
		Phone:   claims.Phone,
		Address: claims.Address.Street,
		City:    claims.Address.Locality,
		Zip:     claims.Address.PostalCode,
	}
	if err := db.Create(&cust).Error; err != nil {
		return nil, err
	}
	return &cust, nil
}

// safeReturnURL only lets local paths through.
func safeReturnURL(u string) string {
	if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") {
		return "/"
	}
	return u
}
