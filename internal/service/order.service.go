package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/infrastructure/ordernumber"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type OrderService interface {
	// CreateOrder checks out a cart inside the caller's unit of work: it
	// validates the cart, creates the order, takes the ordered quantities
	// out of inventory and deactivates the cart.
	CreateOrder(ctx context.Context, store Store, draft CreateOrderDraft) (*domain.Order, error)
	FindOrders(ctx context.Context, store Store, customerID uuid.UUID, page domain.Pagination) ([]domain.Order, error)
	// FindOrder reports orders of other customers as not found.
	FindOrder(ctx context.Context, store Store, orderID, customerID uuid.UUID) (*domain.Order, error)
}

type CreateOrderDraft struct {
	CartID         uuid.UUID
	PaymentMethod  domain.PaymentMethod
	OrderCreatorID uuid.UUID
}

type orderService struct {
	validator CartValidator
	numbers   ordernumber.Generator
	logger    zerolog.Logger
	now       func() time.Time
}

func NewOrderService(
	validator CartValidator,
	numbers ordernumber.Generator,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		validator: validator,
		numbers:   numbers,
		logger:    logger.With().Str("component", "order_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *orderService) CreateOrder(ctx context.Context, store Store, draft CreateOrderDraft) (*domain.Order, error) {
	if !draft.PaymentMethod.Valid() {
		return nil, domain.Invalid("order.create", fmt.Sprintf("unsupported payment method: %s", draft.PaymentMethod))
	}

	log := s.logger.With().Stringer("cart_id", draft.CartID).Logger()
	log.Debug().Msg("creating order")

	cart, err := store.Carts().FindByID(ctx, draft.CartID)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(ctx, store, cart, draft.OrderCreatorID); err != nil {
		log.Debug().Err(err).Msg("cart rejected")
		return nil, err
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New(),
		CustomerID:    cart.CustomerID,
		CartID:        cart.ID,
		OrderNumber:   s.numbers.Next(),
		PaymentMethod: draft.PaymentMethod,
		Status:        domain.OrderCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Orders().Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.decrementInventory(ctx, store, cart.LineItems); err != nil {
		return nil, err
	}

	cart.Status = domain.CartInactive
	cart.UpdatedAt = now
	if err := store.Carts().Update(ctx, cart); err != nil {
		return nil, err
	}

	if err := s.recordOrderCreated(ctx, store, order, cart); err != nil {
		return nil, err
	}

	log.Info().
		Stringer("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Int("line_items", len(cart.LineItems)).
		Msg("order created")

	return order, nil
}

// decrementInventory takes every line item's quantity out of stock. The
// updates touch distinct books and run concurrently. Each one only applies
// while enough stock is left, so a checkout that lost a race with another
// transaction after validation fails here instead of driving stock negative.
func (s *orderService) decrementInventory(ctx context.Context, store Store, items []domain.LineItem) error {
	inventories := store.Inventories()
	applied := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			ok, err := inventories.Decrement(gctx, item.BookID, item.Quantity)
			if err != nil {
				return err
			}
			applied[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, item := range items {
		if applied[i] {
			continue
		}
		inventory, err := inventories.FindByBookID(ctx, item.BookID)
		if err != nil {
			return err
		}
		return &domain.LineItemOutOfInventoryError{
			BookID:    item.BookID,
			Requested: item.Quantity,
			Available: inventory.Quantity,
		}
	}

	return nil
}

func (s *orderService) recordOrderCreated(ctx context.Context, store Store, order *domain.Order, cart *domain.Cart) error {
	payload := domain.OrderCreatedPayload{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CartID:        order.CartID,
		PaymentMethod: order.PaymentMethod,
		TotalPrice:    cart.TotalPrice,
		Items:         make([]domain.OrderCreatedItem, 0, len(cart.LineItems)),
		CreatedAt:     order.CreatedAt,
	}
	for _, item := range cart.LineItems {
		payload.Items = append(payload.Items, domain.OrderCreatedItem{
			BookID:     item.BookID,
			Quantity:   item.Quantity,
			Price:      item.Price,
			TotalPrice: item.TotalPrice,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal order created payload: %w", err)
	}

	return store.Outbox().Insert(ctx, &domain.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: order.ID,
		EventType:   domain.EventOrderCreated,
		Payload:     data,
		CreatedAt:   order.CreatedAt,
	})
}

func (s *orderService) FindOrders(ctx context.Context, store Store, customerID uuid.UUID, page domain.Pagination) ([]domain.Order, error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}
	return store.Orders().FindMany(ctx, customerID, page)
}

func (s *orderService) FindOrder(ctx context.Context, store Store, orderID, customerID uuid.UUID) (*domain.Order, error) {
	order, err := store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, &domain.OrderNotFoundError{OrderID: orderID}
	}
	return order, nil
}
