package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CartService manages carts and their line items. Every mutation leaves
// cart.TotalPrice equal to the sum of the line item totals.
//
// Operations on an existing cart act on behalf of customerID. A cart owned
// by another customer is reported as not found.
type CartService interface {
	CreateCart(ctx context.Context, store Store, draft CreateCartDraft) (*domain.Cart, error)
	FindCart(ctx context.Context, store Store, cartID, customerID uuid.UUID) (*domain.Cart, error)
	UpdateCart(ctx context.Context, store Store, cartID, customerID uuid.UUID, draft UpdateCartDraft) (*domain.Cart, error)
	// AddLineItem adds a book to the cart, or increases the quantity of the
	// line item that already holds it.
	AddLineItem(ctx context.Context, store Store, cartID, customerID uuid.UUID, draft AddLineItemDraft) (*domain.Cart, error)
	// RemoveLineItem lowers a line item's quantity and deletes the line item
	// once the removed quantity reaches what it holds.
	RemoveLineItem(ctx context.Context, store Store, cartID, customerID uuid.UUID, draft RemoveLineItemDraft) (*domain.Cart, error)
	DeleteCart(ctx context.Context, store Store, cartID, customerID uuid.UUID) error
}

type CreateCartDraft struct {
	CustomerID        uuid.UUID
	BillingAddressID  *uuid.UUID
	ShippingAddressID *uuid.UUID
	DeliveryMethod    *domain.DeliveryMethod
}

// UpdateCartDraft holds optional changes; nil fields are left untouched.
type UpdateCartDraft struct {
	Status            *domain.CartStatus
	BillingAddressID  *uuid.UUID
	ShippingAddressID *uuid.UUID
	DeliveryMethod    *domain.DeliveryMethod
}

type AddLineItemDraft struct {
	BookID   uuid.UUID
	Price    decimal.Decimal
	Quantity int
}

type RemoveLineItemDraft struct {
	LineItemID uuid.UUID
	Quantity   int
}

type cartService struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewCartService(logger zerolog.Logger) CartService {
	return &cartService{
		logger: logger.With().Str("component", "cart_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *cartService) CreateCart(ctx context.Context, store Store, draft CreateCartDraft) (*domain.Cart, error) {
	if draft.CustomerID == uuid.Nil {
		return nil, domain.Invalid("cart.create", "customer id is required")
	}
	if draft.DeliveryMethod != nil && !draft.DeliveryMethod.Valid() {
		return nil, domain.Invalid("cart.create", fmt.Sprintf("unsupported delivery method: %s", *draft.DeliveryMethod))
	}

	cart := domain.NewCart(draft.CustomerID)
	cart.BillingAddressID = draft.BillingAddressID
	cart.ShippingAddressID = draft.ShippingAddressID
	cart.DeliveryMethod = draft.DeliveryMethod

	if err := store.Carts().Create(ctx, cart); err != nil {
		return nil, err
	}

	s.logger.Debug().Stringer("cart_id", cart.ID).Stringer("customer_id", cart.CustomerID).Msg("cart created")
	return cart, nil
}

func (s *cartService) FindCart(ctx context.Context, store Store, cartID, customerID uuid.UUID) (*domain.Cart, error) {
	return s.findOwnedCart(ctx, store, cartID, customerID)
}

func (s *cartService) UpdateCart(ctx context.Context, store Store, cartID, customerID uuid.UUID, draft UpdateCartDraft) (*domain.Cart, error) {
	if draft.Status != nil && *draft.Status != domain.CartActive && *draft.Status != domain.CartInactive {
		return nil, domain.Invalid("cart.update", fmt.Sprintf("unsupported cart status: %s", *draft.Status))
	}
	if draft.DeliveryMethod != nil && !draft.DeliveryMethod.Valid() {
		return nil, domain.Invalid("cart.update", fmt.Sprintf("unsupported delivery method: %s", *draft.DeliveryMethod))
	}

	cart, err := s.findActiveCart(ctx, store, cartID, customerID)
	if err != nil {
		return nil, err
	}

	if draft.Status != nil {
		cart.Status = *draft.Status
	}
	if draft.BillingAddressID != nil {
		cart.BillingAddressID = draft.BillingAddressID
	}
	if draft.ShippingAddressID != nil {
		cart.ShippingAddressID = draft.ShippingAddressID
	}
	if draft.DeliveryMethod != nil {
		cart.DeliveryMethod = draft.DeliveryMethod
	}

	if err := s.save(ctx, store, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) AddLineItem(ctx context.Context, store Store, cartID, customerID uuid.UUID, draft AddLineItemDraft) (*domain.Cart, error) {
	if draft.Quantity <= 0 {
		return nil, domain.Invalid("cart.add_line_item", "quantity must be greater than 0")
	}
	if draft.Price.IsNegative() {
		return nil, domain.Invalid("cart.add_line_item", "price must not be negative")
	}

	cart, err := s.findActiveCart(ctx, store, cartID, customerID)
	if err != nil {
		return nil, err
	}

	carts := store.Carts()
	if item, ok := cart.LineItemForBook(draft.BookID); ok {
		item.SetQuantity(item.Quantity + draft.Quantity)
		if err := carts.UpdateLineItem(ctx, item); err != nil {
			return nil, err
		}
	} else {
		item := domain.NewLineItem(cart.ID, draft.BookID, draft.Price, draft.Quantity)
		if err := carts.CreateLineItem(ctx, &item); err != nil {
			return nil, err
		}
		cart.LineItems = append(cart.LineItems, item)
	}

	if err := s.save(ctx, store, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) RemoveLineItem(ctx context.Context, store Store, cartID, customerID uuid.UUID, draft RemoveLineItemDraft) (*domain.Cart, error) {
	if draft.Quantity <= 0 {
		return nil, domain.Invalid("cart.remove_line_item", "quantity must be greater than 0")
	}

	cart, err := s.findActiveCart(ctx, store, cartID, customerID)
	if err != nil {
		return nil, err
	}

	item, ok := cart.LineItem(draft.LineItemID)
	if !ok {
		return nil, &domain.LineItemNotFoundError{CartID: cartID, LineItemID: draft.LineItemID}
	}

	carts := store.Carts()
	if draft.Quantity >= item.Quantity {
		if err := carts.DeleteLineItem(ctx, cart.ID, item.ID); err != nil {
			return nil, err
		}
		cart.RemoveLineItem(item.ID)
	} else {
		item.SetQuantity(item.Quantity - draft.Quantity)
		if err := carts.UpdateLineItem(ctx, item); err != nil {
			return nil, err
		}
	}

	if err := s.save(ctx, store, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) DeleteCart(ctx context.Context, store Store, cartID, customerID uuid.UUID) error {
	if _, err := s.findOwnedCart(ctx, store, cartID, customerID); err != nil {
		return err
	}
	if err := store.Carts().Delete(ctx, cartID); err != nil {
		return err
	}
	s.logger.Debug().Stringer("cart_id", cartID).Msg("cart deleted")
	return nil
}

func (s *cartService) findOwnedCart(ctx context.Context, store Store, cartID, customerID uuid.UUID) (*domain.Cart, error) {
	cart, err := store.Carts().FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.CustomerID != customerID {
		return nil, &domain.CartNotFoundError{CartID: cartID}
	}
	return cart, nil
}

func (s *cartService) findActiveCart(ctx context.Context, store Store, cartID, customerID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.findOwnedCart(ctx, store, cartID, customerID)
	if err != nil {
		return nil, err
	}
	if !cart.IsActive() {
		return nil, &domain.CartNotActiveError{CartID: cart.ID}
	}
	return cart, nil
}

// save recomputes the total from the line items before persisting.
func (s *cartService) save(ctx context.Context, store Store, cart *domain.Cart) error {
	cart.RecalculateTotal()
	cart.UpdatedAt = s.now()
	return store.Carts().Update(ctx, cart)
}
