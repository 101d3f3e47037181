// Package notifier tells customers that their order has been placed.
package notifier

import (
	"context"
	"errors"
)

// Receipt is what a customer is told about a placed order.
type Receipt struct {
	OrderID uint
	Name    string
	Email   string
	Phone   string
	Total   float64
}

type Notifier interface {
	OrderPlaced(ctx context.Context, receipt Receipt) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, Receipt) error { return nil }

// Multi sends through every notifier and joins their errors.
type Multi []Notifier

func (m Multi) OrderPlaced(ctx context.Context, receipt Receipt) error {
	var errs []error
	for _, n := range m {
		if err := n.OrderPlaced(ctx, receipt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
