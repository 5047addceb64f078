package cache

import (
	"context"
	"errors"

	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/google/uuid"
)

var ErrCacheMiss = errors.New("cache miss")

// CartCache holds committed carts for reads outside of a transaction.
type CartCache interface {
	Get(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, cartID uuid.UUID) error
}

// Noop is used when no cache is configured.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, *domain.Cart) error              { return nil }
func (Noop) Delete(context.Context, uuid.UUID) error              { return nil }
