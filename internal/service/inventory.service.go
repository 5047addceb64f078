package service

import (
	"context"
	"time"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
)

// InventoryService manages stock outside of checkout.
type InventoryService interface {
	CreateInventory(ctx context.Context, store Store, bookID uuid.UUID, quantity int) (*domain.Inventory, error)
	FindInventory(ctx context.Context, store Store, bookID uuid.UUID) (*domain.Inventory, error)
	UpdateInventory(ctx context.Context, store Store, bookID uuid.UUID, quantity int) (*domain.Inventory, error)
}

type inventoryService struct {
	now func() time.Time
}

func NewInventoryService() InventoryService {
	return &inventoryService{
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *inventoryService) CreateInventory(ctx context.Context, store Store, bookID uuid.UUID, quantity int) (*domain.Inventory, error) {
	if quantity < 0 {
		return nil, domain.Invalid("inventory.create", "quantity must not be negative")
	}

	now := s.now()
	inventory := &domain.Inventory{
		ID:        uuid.New(),
		BookID:    bookID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Inventories().Create(ctx, inventory); err != nil {
		return nil, err
	}
	return inventory, nil
}

func (s *inventoryService) FindInventory(ctx context.Context, store Store, bookID uuid.UUID) (*domain.Inventory, error) {
	return store.Inventories().FindByBookID(ctx, bookID)
}

func (s *inventoryService) UpdateInventory(ctx context.Context, store Store, bookID uuid.UUID, quantity int) (*domain.Inventory, error) {
	if quantity < 0 {
		return nil, domain.Invalid("inventory.update", "quantity must not be negative")
	}

	inventories := store.Inventories()
	inventory, err := inventories.FindByBookID(ctx, bookID)
	if err != nil {
		return nil, err
	}

	inventory.Quantity = quantity
	inventory.UpdatedAt = s.now()
	if err := inventories.Update(ctx, inventory); err != nil {
		return nil, err
	}
	return inventory, nil
}
