package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cieslarmichal/bookstore/internal/database"
	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
)

type InventoryRepo interface {
	Create(ctx context.Context, inventory *domain.Inventory) error
	FindByBookID(ctx context.Context, bookID uuid.UUID) (*domain.Inventory, error)
	// Update overwrites the stock quantity of an existing inventory row.
	Update(ctx context.Context, inventory *domain.Inventory) error
	// Decrement subtracts quantity only while enough stock is left. It
	// reports false when no row matched, either because the book has no
	// inventory or because the stock is insufficient.
	Decrement(ctx context.Context, bookID uuid.UUID, quantity int) (bool, error)
}

type inventoryRepo struct {
	db database.DBTX
}

func NewInventoryRepo(db database.DBTX) InventoryRepo {
	return &inventoryRepo{db: db}
}

func (r *inventoryRepo) Create(ctx context.Context, inventory *domain.Inventory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inventories (id, book_id, quantity, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		inventory.ID,
		inventory.BookID,
		inventory.Quantity,
		inventory.CreatedAt,
		inventory.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return &domain.InventoryAlreadyExistsError{BookID: inventory.BookID}
	}
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}
	return nil
}

func (r *inventoryRepo) FindByBookID(ctx context.Context, bookID uuid.UUID) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := r.db.QueryRowContext(ctx,
		`SELECT id, book_id, quantity, created_at, updated_at FROM inventories WHERE book_id = $1`, bookID).Scan(
		&inv.ID,
		&inv.BookID,
		&inv.Quantity,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.InventoryNotFoundError{BookID: bookID}
	}
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	return &inv, nil
}

func (r *inventoryRepo) Update(ctx context.Context, inventory *domain.Inventory) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventories SET quantity = $2, updated_at = $3 WHERE id = $1`,
		inventory.ID,
		inventory.Quantity,
		inventory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update inventory: %w", err)
	} else if affected == 0 {
		return &domain.InventoryNotFoundError{BookID: inventory.BookID}
	}
	return nil
}

func (r *inventoryRepo) Decrement(ctx context.Context, bookID uuid.UUID, quantity int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventories
		 SET quantity = quantity - $2,
		     updated_at = now()
		 WHERE book_id = $1 AND quantity >= $2`,
		bookID,
		quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement inventory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement inventory: %w", err)
	}
	return affected == 1, nil
}
