package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cieslarmichal/bookstore/internal/cache"
	"github.com/cieslarmichal/bookstore/internal/config"
	"github.com/cieslarmichal/bookstore/internal/database"
	"github.com/cieslarmichal/bookstore/internal/handler"
	"github.com/cieslarmichal/bookstore/internal/infrastructure/events"
	"github.com/cieslarmichal/bookstore/internal/infrastructure/ordernumber"
	"github.com/cieslarmichal/bookstore/internal/logger"
	"github.com/cieslarmichal/bookstore/internal/service"
	"github.com/cieslarmichal/bookstore/internal/telemetry"
	"github.com/cieslarmichal/bookstore/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bookstore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(os.Stdout, cfg.Env, cfg.LogLevel)
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	dbService := database.New(db, log)
	defer dbService.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "bookstore"),
	)
	metrics := telemetry.NewMetrics(registry)

	cartCache, closeCache := newCartCache(ctx, cfg.Redis, log)
	defer closeCache()

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		defer publisher.Close()

		relay := worker.NewOutboxRelay(db, publisher, cfg.Outbox.Interval, cfg.Outbox.BatchSize, metrics, log)
		go relay.Run(ctx)
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, outbox events stay unpublished")
	}

	h := handler.New(handler.Deps{
		DB:        dbService,
		Isolation: cfg.Database.Isolation(),
		Carts:     service.NewCartService(log),
		Orders:    service.NewOrderService(service.NewCartValidator(), ordernumber.NewGenerator(), log),
		Inventory: service.NewInventoryService(),
		Cache:     cartCache,
		Metrics:   metrics,
		Logger:    log,
	})
	router, err := handler.NewRouter(h, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Uint16("port", cfg.Port).Str("env", cfg.Env).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCartCache(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (cache.CartCache, func()) {
	if cfg.Addr == "" {
		log.Info().Msg("REDIS_ADDR not set, cart cache disabled")
		return cache.Noop{}, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis unreachable, cart cache disabled")
		_ = client.Close()
		return cache.Noop{}, func() {}
	}

	return cache.NewRedisCache(client, cfg.TTL), func() { _ = client.Close() }
}
