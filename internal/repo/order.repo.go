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

type OrderRepo interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// FindMany lists a customer's orders, newest first.
	FindMany(ctx context.Context, customerID uuid.UUID, page domain.Pagination) ([]domain.Order, error)
}

type orderRepo struct {
	db database.DBTX
}

func NewOrderRepo(db database.DBTX) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, customer_id, cart_id, order_number, payment_method, status, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }, order *domain.Order) error {
	return row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.CartID,
		&order.OrderNumber,
		&order.PaymentMethod,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID,
		order.CustomerID,
		order.CartID,
		order.OrderNumber,
		order.PaymentMethod,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.Conflict("order.create", fmt.Sprintf("order already exists for cart %s", order.CartID))
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), &order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.OrderNotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &order, nil
}

func (r *orderRepo) FindMany(ctx context.Context, customerID uuid.UUID, page domain.Pagination) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE customer_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		customerID,
		page.Limit,
		page.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var order domain.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}
