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

type CartRepo interface {
	Create(ctx context.Context, cart *domain.Cart) error
	// FindByID loads the cart with its line items in creation order.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	// Update persists the cart columns; line items are written separately.
	Update(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateLineItem(ctx context.Context, item *domain.LineItem) error
	UpdateLineItem(ctx context.Context, item *domain.LineItem) error
	DeleteLineItem(ctx context.Context, cartID, lineItemID uuid.UUID) error
}

type cartRepo struct {
	db database.DBTX
}

func NewCartRepo(db database.DBTX) CartRepo {
	return &cartRepo{db: db}
}

func (r *cartRepo) Create(ctx context.Context, cart *domain.Cart) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO carts (id, customer_id, status, total_price, billing_address_id, shipping_address_id, delivery_method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cart.ID,
		cart.CustomerID,
		cart.Status,
		cart.TotalPrice,
		nullUUID(cart.BillingAddressID),
		nullUUID(cart.ShippingAddressID),
		nullDeliveryMethod(cart.DeliveryMethod),
		cart.CreatedAt,
		cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *cartRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	var (
		cart     domain.Cart
		billing  uuid.NullUUID
		shipping uuid.NullUUID
		delivery sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, customer_id, status, total_price, billing_address_id, shipping_address_id, delivery_method, created_at, updated_at
		 FROM carts WHERE id = $1`, id).Scan(
		&cart.ID,
		&cart.CustomerID,
		&cart.Status,
		&cart.TotalPrice,
		&billing,
		&shipping,
		&delivery,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.CartNotFoundError{CartID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("select cart: %w", err)
	}

	if billing.Valid {
		cart.BillingAddressID = &billing.UUID
	}
	if shipping.Valid {
		cart.ShippingAddressID = &shipping.UUID
	}
	if delivery.Valid {
		method := domain.DeliveryMethod(delivery.String)
		cart.DeliveryMethod = &method
	}

	items, err := r.findLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	cart.LineItems = items

	return &cart, nil
}

func (r *cartRepo) findLineItems(ctx context.Context, cartID uuid.UUID) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cart_id, book_id, price, quantity, total_price, created_at
		 FROM line_items WHERE cart_id = $1
		 ORDER BY created_at, id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("select line items: %w", err)
	}
	defer rows.Close()

	items := []domain.LineItem{}
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.BookID,
			&item.Price,
			&item.Quantity,
			&item.TotalPrice,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

func (r *cartRepo) Update(ctx context.Context, cart *domain.Cart) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE carts
		 SET status = $2,
		     total_price = $3,
		     billing_address_id = $4,
		     shipping_address_id = $5,
		     delivery_method = $6,
		     updated_at = $7
		 WHERE id = $1`,
		cart.ID,
		cart.Status,
		cart.TotalPrice,
		nullUUID(cart.BillingAddressID),
		nullUUID(cart.ShippingAddressID),
		nullDeliveryMethod(cart.DeliveryMethod),
		cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update cart: %w", err)
	} else if affected == 0 {
		return &domain.CartNotFoundError{CartID: cart.ID}
	}
	return nil
}

func (r *cartRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return domain.Conflict("cart.delete", fmt.Sprintf("cart %s is referenced by an order", id))
	}
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	} else if affected == 0 {
		return &domain.CartNotFoundError{CartID: id}
	}
	return nil
}

func (r *cartRepo) CreateLineItem(ctx context.Context, item *domain.LineItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO line_items (id, cart_id, book_id, price, quantity, total_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.ID,
		item.CartID,
		item.BookID,
		item.Price,
		item.Quantity,
		item.TotalPrice,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (r *cartRepo) UpdateLineItem(ctx context.Context, item *domain.LineItem) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE line_items SET quantity = $3, total_price = $4 WHERE id = $1 AND cart_id = $2`,
		item.ID,
		item.CartID,
		item.Quantity,
		item.TotalPrice,
	)
	if err != nil {
		return fmt.Errorf("update line item: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update line item: %w", err)
	} else if affected == 0 {
		return &domain.LineItemNotFoundError{CartID: item.CartID, LineItemID: item.ID}
	}
	return nil
}

func (r *cartRepo) DeleteLineItem(ctx context.Context, cartID, lineItemID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM line_items WHERE id = $1 AND cart_id = $2`, lineItemID, cartID)
	if err != nil {
		return fmt.Errorf("delete line item: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete line item: %w", err)
	} else if affected == 0 {
		return &domain.LineItemNotFoundError{CartID: cartID, LineItemID: lineItemID}
	}
	return nil
}
