// Package uow wraps a single database transaction and hands out
// repositories bound to it.
//
// Callers should go through RunInTransaction, which guarantees that the
// transaction is committed or rolled back and that the connection is
// released on every exit path:
//
//	order, err := uow.RunInTransaction(ctx, uow.New(db, logger),
//		func(ctx context.Context, u *uow.UnitOfWork) (*domain.Order, error) {
//			return orders.CreateOrder(ctx, u, draft)
//		})
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cieslarmichal/bookstore/internal/repo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolledback"
	StateCleaned    State = "cleaned"
)

// ErrInvalidState is returned when a lifecycle operation is called out of order.
var ErrInvalidState = errors.New("unit of work: invalid state")

type UnitOfWork struct {
	id     uuid.UUID
	db     *sql.DB
	opts   *sql.TxOptions
	logger zerolog.Logger

	conn    *sql.Conn
	tx      *sql.Tx
	state   State
	release func(*sql.Conn) error
}

type Option func(*UnitOfWork)

// WithIsolation sets the isolation level of the transaction.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(u *UnitOfWork) {
		u.opts = &sql.TxOptions{Isolation: level}
	}
}

// New creates an idle unit of work. It does not touch the database until Init.
func New(db *sql.DB, logger zerolog.Logger, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		id:      uuid.New(),
		db:      db,
		state:   StateIdle,
		release: (*sql.Conn).Close,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.logger = logger.With().Str("component", "uow").Stringer("uow_id", u.id).Logger()
	return u
}

func (u *UnitOfWork) ID() uuid.UUID { return u.id }

func (u *UnitOfWork) State() State { return u.state }

// Init acquires a dedicated connection if none is held yet and begins the
// transaction on it.
func (u *UnitOfWork) Init(ctx context.Context) error {
	if u.state != StateIdle {
		return fmt.Errorf("%w: init called in state %s", ErrInvalidState, u.state)
	}

	if u.conn == nil {
		conn, err := u.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		u.conn = conn
	}

	tx, err := u.conn.BeginTx(ctx, u.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	u.tx = tx
	u.state = StateActive

	u.logger.Debug().Msg("transaction initialized")
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.state != StateActive {
		return fmt.Errorf("%w: commit called in state %s", ErrInvalidState, u.state)
	}

	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	u.state = StateCommitted

	u.logger.Debug().Msg("transaction committed")
	return nil
}

// Rollback aborts the transaction. A transaction that the driver already
// closed, for instance after a failed commit, counts as rolled back.
func (u *UnitOfWork) Rollback() error {
	if u.state != StateActive {
		return fmt.Errorf("%w: rollback called in state %s", ErrInvalidState, u.state)
	}

	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	u.state = StateRolledBack

	u.logger.Debug().Msg("transaction rolled back")
	return nil
}

// Cleanup returns the connection to the pool. It must be called exactly once.
func (u *UnitOfWork) Cleanup() error {
	if u.state == StateCleaned {
		return fmt.Errorf("%w: already cleaned up", ErrInvalidState)
	}
	u.state = StateCleaned

	if u.conn == nil {
		return nil
	}
	conn := u.conn
	u.conn, u.tx = nil, nil
	if err := u.release(conn); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("release connection: %w", err)
	}
	return nil
}

func (u *UnitOfWork) Carts() repo.CartRepo {
	return repo.NewCartRepo(u.mustTx())
}

func (u *UnitOfWork) Inventories() repo.InventoryRepo {
	return repo.NewInventoryRepo(u.mustTx())
}

func (u *UnitOfWork) Orders() repo.OrderRepo {
	return repo.NewOrderRepo(u.mustTx())
}

func (u *UnitOfWork) Outbox() repo.OutboxRepo {
	return repo.NewOutboxRepo(u.mustTx())
}

func (u *UnitOfWork) mustTx() *sql.Tx {
	if u.state != StateActive {
		panic(fmt.Sprintf("unit of work %s: repository requested in state %s", u.id, u.state))
	}
	return u.tx
}

// RunInTransaction initializes u, runs fn inside the transaction and commits
// when fn succeeds. When fn fails the transaction is rolled back and fn's
// error is returned unchanged. Cleanup runs exactly once on every path,
// including a panic in fn, which is re-raised after rollback.
//
// A cleanup failure is logged and never returned: a nil error means the
// transaction committed, and result is its committed value.
func RunInTransaction[T any](ctx context.Context, u *UnitOfWork, fn func(ctx context.Context, u *UnitOfWork) (T, error)) (T, error) {
	var zero T

	defer func() {
		if err := u.Cleanup(); err != nil {
			u.logger.Error().Err(err).Msg("unit of work cleanup failed")
		}
	}()

	if err := u.Init(ctx); err != nil {
		return zero, err
	}

	defer func() {
		if p := recover(); p != nil {
			u.rollbackQuietly()
			panic(p)
		}
	}()

	result, err := fn(ctx, u)
	if err != nil {
		u.rollbackQuietly()
		return zero, err
	}

	if err := u.Commit(); err != nil {
		u.rollbackQuietly()
		return zero, err
	}

	return result, nil
}

// rollbackQuietly rolls back and logs a failure instead of returning it, so
// the caller's original error is the one that propagates.
func (u *UnitOfWork) rollbackQuietly() {
	if u.state != StateActive {
		return
	}
	if err := u.Rollback(); err != nil {
		u.logger.Error().Err(err).Msg("rollback failed")
	}
}
