// Command simulate races concurrent checkouts for one book against a live
// database and reports whether stock was oversold.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/cieslarmichal/bookstore/internal/config"
	"github.com/cieslarmichal/bookstore/internal/database"
	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/infrastructure/ordernumber"
	"github.com/cieslarmichal/bookstore/internal/logger"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/cieslarmichal/bookstore/internal/uow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	buyers := flag.Int("buyers", 20, "concurrent checkouts")
	stock := flag.Int("stock", 5, "initial stock of the book")
	perCart := flag.Int("quantity", 1, "copies per cart")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	carts := service.NewCartService(log)
	inventories := service.NewInventoryService()
	orders := service.NewOrderService(service.NewCartValidator(), ordernumber.NewGenerator(), log)

	tx := func() *uow.UnitOfWork {
		return uow.New(db, log, uow.WithIsolation(cfg.Database.Isolation()))
	}

	bookID := uuid.New()
	if _, err := uow.RunInTransaction(ctx, tx(), func(ctx context.Context, u *uow.UnitOfWork) (*domain.Inventory, error) {
		return inventories.CreateInventory(ctx, u, bookID, *stock)
	}); err != nil {
		log.Fatal().Err(err).Msg("seed inventory")
	}

	log.Info().Int("buyers", *buyers).Int("stock", *stock).Int("quantity", *perCart).Msg("starting simulation")

	cartIDs := make([]uuid.UUID, *buyers)
	customerIDs := make([]uuid.UUID, *buyers)
	for i := range cartIDs {
		customerIDs[i] = uuid.New()
		cart, err := uow.RunInTransaction(ctx, tx(), func(ctx context.Context, u *uow.UnitOfWork) (*domain.Cart, error) {
			return fillCart(ctx, u, carts, customerIDs[i], bookID, *perCart)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("prepare cart")
		}
		cartIDs[i] = cart.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  = map[string]int{}
	)
	for i := range cartIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := uow.RunInTransaction(ctx, tx(), func(ctx context.Context, u *uow.UnitOfWork) (*domain.Order, error) {
				return orders.CreateOrder(ctx, u, service.CreateOrderDraft{
					CartID:         cartIDs[i],
					PaymentMethod:  domain.PaymentCard,
					OrderCreatorID: customerIDs[i],
				})
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[domain.ErrorCode(err)]++
				log.Debug().Err(err).Int("buyer", i+1).Msg("checkout failed")
				return
			}
			succeeded++
			log.Debug().Int("buyer", i+1).Str("order_number", order.OrderNumber).Msg("checkout succeeded")
		}()
	}
	wg.Wait()

	left, err := uow.RunInTransaction(ctx, tx(), func(ctx context.Context, u *uow.UnitOfWork) (*domain.Inventory, error) {
		return inventories.FindInventory(ctx, u, bookID)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("read inventory")
	}

	report(log, *stock, *perCart, succeeded, failures, left.Quantity)
}

func fillCart(ctx context.Context, store service.Store, carts service.CartService, customerID, bookID uuid.UUID, quantity int) (*domain.Cart, error) {
	billing, shipping := uuid.New(), uuid.New()
	delivery := domain.DeliveryStandard

	cart, err := carts.CreateCart(ctx, store, service.CreateCartDraft{
		CustomerID:        customerID,
		BillingAddressID:  &billing,
		ShippingAddressID: &shipping,
		DeliveryMethod:    &delivery,
	})
	if err != nil {
		return nil, err
	}
	return carts.AddLineItem(ctx, store, cart.ID, customerID, service.AddLineItemDraft{
		BookID:   bookID,
		Price:    decimal.RequireFromString("19.99"),
		Quantity: quantity,
	})
}

func report(log zerolog.Logger, stock, perCart, succeeded int, failures map[string]int, left int) {
	sold := succeeded * perCart
	event := log.Info()
	if sold+left != stock || left < 0 {
		event = log.Error()
	}
	dict := zerolog.Dict()
	for code, n := range failures {
		dict = dict.Int(code, n)
	}
	event.
		Int("orders", succeeded).
		Int("sold", sold).
		Int("stock_left", left).
		Dict("failures", dict).
		Bool("oversold", sold > stock).
		Msg("simulation finished")
}
