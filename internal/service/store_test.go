package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/repo"
	"github.com/google/uuid"
)

// memStore is an in-memory Store. Reads return copies, so a service only
// changes stored state through the repository calls it makes.
type memStore struct {
	mu          sync.Mutex
	carts       map[uuid.UUID]domain.Cart
	inventories map[uuid.UUID]domain.Inventory
	orders      []domain.Order
	events      []domain.OutboxEvent

	// decrementHook runs before every Decrement and may change stock to
	// simulate a concurrent checkout.
	decrementHook func(bookID uuid.UUID)
	failOn        map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		carts:       map[uuid.UUID]domain.Cart{},
		inventories: map[uuid.UUID]domain.Inventory{},
		failOn:      map[string]error{},
	}
}

func (s *memStore) Carts() repo.CartRepo           { return memCarts{s} }
func (s *memStore) Inventories() repo.InventoryRepo { return memInventories{s} }
func (s *memStore) Orders() repo.OrderRepo         { return memOrders{s} }
func (s *memStore) Outbox() repo.OutboxRepo        { return memOutbox{s} }

func (s *memStore) putCart(c *domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[c.ID] = copyCart(*c)
}

func (s *memStore) cart(id uuid.UUID) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCart(s.carts[id])
}

func (s *memStore) stock(bookID uuid.UUID, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventories[bookID] = domain.Inventory{ID: uuid.New(), BookID: bookID, Quantity: quantity}
}

func (s *memStore) quantity(bookID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inventories[bookID].Quantity
}

func (s *memStore) fail(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failOn[op]
}

func copyCart(c domain.Cart) domain.Cart {
	c.LineItems = slices.Clone(c.LineItems)
	return c
}

type memCarts struct{ s *memStore }

func (r memCarts) Create(_ context.Context, cart *domain.Cart) error {
	if err := r.s.fail("carts.create"); err != nil {
		return err
	}
	r.s.putCart(cart)
	return nil
}

func (r memCarts) FindByID(_ context.Context, id uuid.UUID) (*domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[id]
	if !ok {
		return nil, &domain.CartNotFoundError{CartID: id}
	}
	c = copyCart(c)
	return &c, nil
}

// Update writes the cart columns and keeps the stored line items.
func (r memCarts) Update(_ context.Context, cart *domain.Cart) error {
	if err := r.s.fail("carts.update"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.carts[cart.ID]
	if !ok {
		return &domain.CartNotFoundError{CartID: cart.ID}
	}
	updated := *cart
	updated.LineItems = stored.LineItems
	r.s.carts[cart.ID] = updated
	return nil
}

func (r memCarts) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.carts[id]; !ok {
		return &domain.CartNotFoundError{CartID: id}
	}
	delete(r.s.carts, id)
	return nil
}

func (r memCarts) CreateLineItem(_ context.Context, item *domain.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := r.s.carts[item.CartID]
	c.LineItems = append(slices.Clone(c.LineItems), *item)
	r.s.carts[item.CartID] = c
	return nil
}

func (r memCarts) UpdateLineItem(_ context.Context, item *domain.LineItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := copyCart(r.s.carts[item.CartID])
	for i := range c.LineItems {
		if c.LineItems[i].ID == item.ID {
			c.LineItems[i] = *item
			r.s.carts[item.CartID] = c
			return nil
		}
	}
	return &domain.LineItemNotFoundError{CartID: item.CartID, LineItemID: item.ID}
}

func (r memCarts) DeleteLineItem(_ context.Context, cartID, lineItemID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := copyCart(r.s.carts[cartID])
	c.RemoveLineItem(lineItemID)
	r.s.carts[cartID] = c
	return nil
}

type memInventories struct{ s *memStore }

func (r memInventories) Create(_ context.Context, inventory *domain.Inventory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inventories[inventory.BookID]; ok {
		return &domain.InventoryAlreadyExistsError{BookID: inventory.BookID}
	}
	r.s.inventories[inventory.BookID] = *inventory
	return nil
}

func (r memInventories) FindByBookID(_ context.Context, bookID uuid.UUID) (*domain.Inventory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.inventories[bookID]
	if !ok {
		return nil, &domain.InventoryNotFoundError{BookID: bookID}
	}
	return &inv, nil
}

func (r memInventories) Update(_ context.Context, inventory *domain.Inventory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inventories[inventory.BookID]; !ok {
		return &domain.InventoryNotFoundError{BookID: inventory.BookID}
	}
	r.s.inventories[inventory.BookID] = *inventory
	return nil
}

func (r memInventories) Decrement(_ context.Context, bookID uuid.UUID, quantity int) (bool, error) {
	if err := r.s.fail("inventories.decrement"); err != nil {
		return false, err
	}
	if r.s.decrementHook != nil {
		r.s.decrementHook(bookID)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.inventories[bookID]
	if !ok || inv.Quantity < quantity {
		return false, nil
	}
	inv.Quantity -= quantity
	inv.UpdatedAt = time.Now().UTC()
	r.s.inventories[bookID] = inv
	return true, nil
}

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, order *domain.Order) error {
	if err := r.s.fail("orders.create"); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders = append(r.s.orders, *order)
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, &domain.OrderNotFoundError{OrderID: id}
}

func (r memOrders) FindMany(_ context.Context, customerID uuid.UUID, page domain.Pagination) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []domain.Order
	for i := len(r.s.orders) - 1; i >= 0; i-- {
		if r.s.orders[i].CustomerID == customerID {
			mine = append(mine, r.s.orders[i])
		}
	}
	start := min(page.Offset(), len(mine))
	end := min(start+page.Limit, len(mine))
	return mine[start:end], nil
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Insert(_ context.Context, event *domain.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.events = append(r.s.events, *event)
	return nil
}

func (r memOutbox) FetchUnpublished(context.Context, int) ([]domain.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.events), nil
}

func (r memOutbox) MarkPublished(context.Context, uuid.UUID, time.Time) error { return nil }
