package worker

import (
	"context"
	"database/sql"
	"time"

	"github.com/cieslarmichal/bookstore/internal/infrastructure/events"
	"github.com/cieslarmichal/bookstore/internal/telemetry"
	"github.com/cieslarmichal/bookstore/internal/uow"
	"github.com/rs/zerolog"
)

// OutboxRelay publishes events recorded by committed checkouts. Delivery is
// at least once: a batch whose commit fails after publishing is sent again
// on the next tick, and consumers dedupe on the event_id header.
type OutboxRelay struct {
	db        *sql.DB
	publisher events.Publisher
	interval  time.Duration
	batchSize int
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

func NewOutboxRelay(
	db *sql.DB,
	publisher events.Publisher,
	interval time.Duration,
	batchSize int,
	metrics *telemetry.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		db:        db,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
	}
}

func (w *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("outbox relay started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := w.process(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("outbox relay failed")
			}
		}
	}
}

// process relays one batch and returns how many events were published.
func (w *OutboxRelay) process(ctx context.Context) (int, error) {
	return uow.RunInTransaction(ctx, uow.New(w.db, w.logger), func(ctx context.Context, u *uow.UnitOfWork) (int, error) {
		outbox := u.Outbox()

		pending, err := outbox.FetchUnpublished(ctx, w.batchSize)
		if err != nil {
			return 0, err
		}
		if len(pending) == 0 {
			return 0, nil
		}

		if err := w.publisher.Publish(ctx, pending...); err != nil {
			w.metrics.EventsFailed.Add(float64(len(pending)))
			return 0, err
		}

		now := time.Now().UTC()
		for _, ev := range pending {
			if err := outbox.MarkPublished(ctx, ev.ID, now); err != nil {
				return 0, err
			}
		}

		w.metrics.EventsPublished.Add(float64(len(pending)))
		w.logger.Debug().Int("count", len(pending)).Msg("outbox events published")
		return len(pending), nil
	})
}
