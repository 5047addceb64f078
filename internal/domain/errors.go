package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is. Every typed error below unwraps to one of them,
// which also gives it its error code.
var (
	ErrCartNotFound      = &Error{Code: ENOTFOUND, Message: "Cart not found"}
	ErrOrderNotFound     = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrInventoryNotFound = &Error{Code: ENOTFOUND, Message: "Inventory not found"}
	ErrLineItemNotFound  = &Error{Code: ENOTFOUND, Message: "Line item not found"}

	ErrInventoryAlreadyExists = &Error{Code: ECONFLICT, Message: "Inventory already exists"}

	ErrOrderCreatorMismatch       = &Error{Code: EFORBIDDEN, Message: "Order creator is not the cart owner"}
	ErrCartNotActive              = &Error{Code: EINVALID, Message: "Cart is not active"}
	ErrBillingAddressNotProvided  = &Error{Code: EINVALID, Message: "Billing address not provided"}
	ErrShippingAddressNotProvided = &Error{Code: EINVALID, Message: "Shipping address not provided"}
	ErrLineItemsNotProvided       = &Error{Code: EINVALID, Message: "Line items not provided"}
	ErrDeliveryMethodNotProvided  = &Error{Code: EINVALID, Message: "Delivery method not provided"}
	ErrInvalidTotalPrice          = &Error{Code: EINVALID, Message: "Invalid total price"}
	ErrLineItemOutOfInventory     = &Error{Code: ECONFLICT, Message: "Line item out of inventory"}
)

// =============================================================================
// Not found
// =============================================================================

type CartNotFoundError struct {
	CartID uuid.UUID
}

func (e *CartNotFoundError) Error() string {
	return fmt.Sprintf("cart not found: %s", e.CartID)
}

func (e *CartNotFoundError) Unwrap() error { return ErrCartNotFound }

type OrderNotFoundError struct {
	OrderID uuid.UUID
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order not found: %s", e.OrderID)
}

func (e *OrderNotFoundError) Unwrap() error { return ErrOrderNotFound }

type InventoryNotFoundError struct {
	BookID uuid.UUID
}

func (e *InventoryNotFoundError) Error() string {
	return fmt.Sprintf("inventory not found for book: %s", e.BookID)
}

func (e *InventoryNotFoundError) Unwrap() error { return ErrInventoryNotFound }

type LineItemNotFoundError struct {
	CartID     uuid.UUID
	LineItemID uuid.UUID
}

func (e *LineItemNotFoundError) Error() string {
	return fmt.Sprintf("line item %s not found in cart %s", e.LineItemID, e.CartID)
}

func (e *LineItemNotFoundError) Unwrap() error { return ErrLineItemNotFound }

// =============================================================================
// Conflict
// =============================================================================

type InventoryAlreadyExistsError struct {
	BookID uuid.UUID
}

func (e *InventoryAlreadyExistsError) Error() string {
	return fmt.Sprintf("inventory already exists for book: %s", e.BookID)
}

func (e *InventoryAlreadyExistsError) Unwrap() error { return ErrInventoryAlreadyExists }

// =============================================================================
// Checkout validation
// =============================================================================

type OrderCreatorMismatchError struct {
	CustomerID     uuid.UUID
	OrderCreatorID uuid.UUID
}

func (e *OrderCreatorMismatchError) Error() string {
	return fmt.Sprintf("order creator %s does not own cart of customer %s", e.OrderCreatorID, e.CustomerID)
}

func (e *OrderCreatorMismatchError) Unwrap() error { return ErrOrderCreatorMismatch }

type CartNotActiveError struct {
	CartID uuid.UUID
}

func (e *CartNotActiveError) Error() string {
	return fmt.Sprintf("cart %s is not active", e.CartID)
}

func (e *CartNotActiveError) Unwrap() error { return ErrCartNotActive }

type BillingAddressNotProvidedError struct {
	CartID uuid.UUID
}

func (e *BillingAddressNotProvidedError) Error() string {
	return fmt.Sprintf("billing address not provided for cart %s", e.CartID)
}

func (e *BillingAddressNotProvidedError) Unwrap() error { return ErrBillingAddressNotProvided }

type ShippingAddressNotProvidedError struct {
	CartID uuid.UUID
}

func (e *ShippingAddressNotProvidedError) Error() string {
	return fmt.Sprintf("shipping address not provided for cart %s", e.CartID)
}

func (e *ShippingAddressNotProvidedError) Unwrap() error { return ErrShippingAddressNotProvided }

type LineItemsNotProvidedError struct {
	CartID uuid.UUID
}

func (e *LineItemsNotProvidedError) Error() string {
	return fmt.Sprintf("cart %s has no line items", e.CartID)
}

func (e *LineItemsNotProvidedError) Unwrap() error { return ErrLineItemsNotProvided }

type DeliveryMethodNotProvidedError struct {
	CartID uuid.UUID
}

func (e *DeliveryMethodNotProvidedError) Error() string {
	return fmt.Sprintf("delivery method not provided for cart %s", e.CartID)
}

func (e *DeliveryMethodNotProvidedError) Unwrap() error { return ErrDeliveryMethodNotProvided }

// InvalidTotalPriceError reports a cart whose stored total (Actual) differs
// from the sum of its line item totals (Expected).
type InvalidTotalPriceError struct {
	CartID   uuid.UUID
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *InvalidTotalPriceError) Error() string {
	return fmt.Sprintf("cart %s total price is %s, expected %s", e.CartID, e.Actual, e.Expected)
}

func (e *InvalidTotalPriceError) Unwrap() error { return ErrInvalidTotalPrice }

type LineItemOutOfInventoryError struct {
	BookID    uuid.UUID
	Requested int
	Available int
}

func (e *LineItemOutOfInventoryError) Error() string {
	return fmt.Sprintf("book %s out of inventory: requested %d, available %d", e.BookID, e.Requested, e.Available)
}

func (e *LineItemOutOfInventoryError) Unwrap() error { return ErrLineItemOutOfInventory }
