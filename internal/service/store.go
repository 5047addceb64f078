package service

import "github.com/cieslarmichal/bookstore/internal/repo"

// Store is the entity access handle of an open unit of work. Service methods
// never open transactions themselves; the caller passes the store of the
// transaction they should run in.
type Store interface {
	Carts() repo.CartRepo
	Inventories() repo.InventoryRepo
	Orders() repo.OrderRepo
	Outbox() repo.OutboxRepo
}
