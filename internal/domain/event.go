package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EventOrderCreated = "order.created"

// OutboxEvent is written in the same transaction as the state change it
// describes and relayed to the broker afterwards.
type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type OrderCreatedPayload struct {
	OrderID       uuid.UUID          `json:"orderId"`
	OrderNumber   string             `json:"orderNumber"`
	CustomerID    uuid.UUID          `json:"customerId"`
	CartID        uuid.UUID          `json:"cartId"`
	PaymentMethod PaymentMethod      `json:"paymentMethod"`
	TotalPrice    decimal.Decimal    `json:"totalPrice"`
	Items         []OrderCreatedItem `json:"items"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type OrderCreatedItem struct {
	BookID     uuid.UUID       `json:"bookId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}
