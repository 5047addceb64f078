package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartActive   CartStatus = "active"
	CartInactive CartStatus = "inactive"
)

type DeliveryMethod string

const (
	DeliveryStandard DeliveryMethod = "standard"
	DeliveryExpress  DeliveryMethod = "express"
	DeliveryPickup   DeliveryMethod = "pickup"
)

func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryStandard, DeliveryExpress, DeliveryPickup:
		return true
	}
	return false
}

// Cart is a customer's selection of books pending checkout. Line items are
// loaded eagerly and kept in creation order.
type Cart struct {
	ID                uuid.UUID       `json:"id"`
	CustomerID        uuid.UUID       `json:"customerId"`
	Status            CartStatus      `json:"status"`
	TotalPrice        decimal.Decimal `json:"totalPrice"`
	BillingAddressID  *uuid.UUID      `json:"billingAddressId,omitempty"`
	ShippingAddressID *uuid.UUID      `json:"shippingAddressId,omitempty"`
	DeliveryMethod    *DeliveryMethod `json:"deliveryMethod,omitempty"`
	LineItems         []LineItem      `json:"lineItems"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func NewCart(customerID uuid.UUID) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     CartActive,
		TotalPrice: decimal.Zero,
		LineItems:  []LineItem{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (c *Cart) IsActive() bool {
	return c.Status == CartActive
}

// LineItemsTotal sums the totals of all line items.
func (c *Cart) LineItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.LineItems {
		total = total.Add(item.TotalPrice)
	}
	return total
}

// RecalculateTotal restores the invariant TotalPrice == LineItemsTotal().
func (c *Cart) RecalculateTotal() {
	c.TotalPrice = c.LineItemsTotal()
}

func (c *Cart) LineItem(id uuid.UUID) (*LineItem, bool) {
	for i := range c.LineItems {
		if c.LineItems[i].ID == id {
			return &c.LineItems[i], true
		}
	}
	return nil, false
}

func (c *Cart) LineItemForBook(bookID uuid.UUID) (*LineItem, bool) {
	for i := range c.LineItems {
		if c.LineItems[i].BookID == bookID {
			return &c.LineItems[i], true
		}
	}
	return nil, false
}

func (c *Cart) RemoveLineItem(id uuid.UUID) {
	items := c.LineItems[:0]
	for _, item := range c.LineItems {
		if item.ID != id {
			items = append(items, item)
		}
	}
	c.LineItems = items
}

// LineItem is one cart entry. Price is the unit price captured when the
// book was added.
type LineItem struct {
	ID         uuid.UUID       `json:"id"`
	CartID     uuid.UUID       `json:"cartId"`
	BookID     uuid.UUID       `json:"bookId"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func NewLineItem(cartID, bookID uuid.UUID, price decimal.Decimal, quantity int) LineItem {
	item := LineItem{
		ID:        uuid.New(),
		CartID:    cartID,
		BookID:    bookID,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}
	item.SetQuantity(quantity)
	return item
}

// SetQuantity updates the quantity and keeps TotalPrice = Price × Quantity.
func (l *LineItem) SetQuantity(quantity int) {
	l.Quantity = quantity
	l.TotalPrice = l.Price.Mul(decimal.NewFromInt(int64(quantity)))
}
