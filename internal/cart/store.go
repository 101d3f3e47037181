// Package cart keeps a visitor's order rows and checkout draft between
// requests and prices them.
package cart

import (
	"encoding/json"
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/jsmidelov/TomasosTre/internal/models"
)

const (
	orderKey       = "Order"
	ingredientsKey = "OrderRowIngredients"
	checkoutKey    = "Checkout"
)

// Store holds the cart of a single visitor.
type Store interface {
	OrderRows() ([]models.OrderRow, error)
	SaveOrderRows(rows []models.OrderRow) error
	OrderRowIngredients() ([]models.OrderRowIngredient, error)
	SaveOrderRowIngredients(ingredients []models.OrderRowIngredient) error
	Checkout() (models.Checkout, error)
	SaveCheckout(checkout models.Checkout) error
	Clear() error
}

// Provider returns the cart store of the visitor behind a request.
type Provider func(c *gin.Context) Store

// FromSession is the Provider backed by the request's gin session.
func FromSession(c *gin.Context) Store {
	return NewSessionStore(sessions.Default(c))
}

// SessionStore keeps the cart as JSON strings in a session.
type SessionStore struct {
	sess sessions.Session
}

func NewSessionStore(sess sessions.Session) *SessionStore {
	return &SessionStore{sess: sess}
}

func (s *SessionStore) OrderRows() ([]models.OrderRow, error) {
	rows := []models.OrderRow{}
	if err := s.load(orderKey, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SessionStore) SaveOrderRows(rows []models.OrderRow) error {
	return s.save(orderKey, rows)
}

func (s *SessionStore) OrderRowIngredients() ([]models.OrderRowIngredient, error) {
	ingredients := []models.OrderRowIngredient{}
	if err := s.load(ingredientsKey, &ingredients); err != nil {
		return nil, err
	}
	return ingredients, nil
}

func (s *SessionStore) SaveOrderRowIngredients(ingredients []models.OrderRowIngredient) error {
	return s.save(ingredientsKey, ingredients)
}

func (s *SessionStore) Checkout() (models.Checkout, error) {
	var checkout models.Checkout
	err := s.load(checkoutKey, &checkout)
	return checkout, err
}

func (s *SessionStore) SaveCheckout(checkout models.Checkout) error {
	return s.save(checkoutKey, checkout)
}

// Clear drops the cart and the checkout draft. Other session values, such as
// the signed-in customer, are kept.
func (s *SessionStore) Clear() error {
	s.sess.Delete(orderKey)
	s.sess.Delete(ingredientsKey)
	s.sess.Delete(checkoutKey)
	if err := s.sess.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) load(key string, v any) error {
	raw, ok := s.sess.Get(key).(string)
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("malformed %s session payload: %w", key, err)
	}
	return nil
}

func (s *SessionStore) save(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	s.sess.Set(key, string(payload))
	if err := s.sess.Save(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
