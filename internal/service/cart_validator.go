package service

import (
	"context"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
)

// CartValidator checks every checkout precondition of a cart.
type CartValidator interface {
	// Validate returns the first violated precondition, checked in this order:
	// creator owns the cart, cart is active, billing address, shipping address,
	// line items present, delivery method, total price matches the line items,
	// and finally stock for each line item in cart order.
	Validate(ctx context.Context, store Store, cart *domain.Cart, orderCreatorID uuid.UUID) error
}

type cartValidator struct{}

func NewCartValidator() CartValidator {
	return cartValidator{}
}

func (cartValidator) Validate(ctx context.Context, store Store, cart *domain.Cart, orderCreatorID uuid.UUID) error {
	if cart.CustomerID != orderCreatorID {
		return &domain.OrderCreatorMismatchError{CustomerID: cart.CustomerID, OrderCreatorID: orderCreatorID}
	}

	if !cart.IsActive() {
		return &domain.CartNotActiveError{CartID: cart.ID}
	}

	if cart.BillingAddressID == nil {
		return &domain.BillingAddressNotProvidedError{CartID: cart.ID}
	}

	if cart.ShippingAddressID == nil {
		return &domain.ShippingAddressNotProvidedError{CartID: cart.ID}
	}

	if len(cart.LineItems) == 0 {
		return &domain.LineItemsNotProvidedError{CartID: cart.ID}
	}

	if cart.DeliveryMethod == nil {
		return &domain.DeliveryMethodNotProvidedError{CartID: cart.ID}
	}

	if expected := cart.LineItemsTotal(); !expected.Equal(cart.TotalPrice) {
		return &domain.InvalidTotalPriceError{CartID: cart.ID, Expected: expected, Actual: cart.TotalPrice}
	}

	inventories := store.Inventories()
	for _, item := range cart.LineItems {
		inventory, err := inventories.FindByBookID(ctx, item.BookID)
		if err != nil {
			return err
		}
		if inventory.Quantity < item.Quantity {
			return &domain.LineItemOutOfInventoryError{
				BookID:    item.BookID,
				Requested: item.Quantity,
				Available: inventory.Quantity,
			}
		}
	}

	return nil
}
