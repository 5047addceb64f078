package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cieslarmichal/bookstore/internal/domain"
	"github.com/cieslarmichal/bookstore/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published []domain.OutboxEvent
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.OutboxEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, events...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func outboxRows(events ...domain.OutboxEvent) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "created_at"})
	for _, ev := range events {
		rows.AddRow(ev.ID.String(), ev.AggregateID.String(), ev.EventType, ev.Payload, ev.CreatedAt)
	}
	return rows
}

func pendingEvent() domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		EventType:   domain.EventOrderCreated,
		Payload:     []byte(`{}`),
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func newRelay(t *testing.T, publisher *recordingPublisher) (*OutboxRelay, sqlmock.Sqlmock, *telemetry.Metrics) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	return NewOutboxRelay(db, publisher, time.Second, 50, metrics, zerolog.Nop()), mock, metrics
}

func TestOutboxRelay_PublishesAndMarks(t *testing.T) {
	publisher := &recordingPublisher{}
	relay, mock, metrics := newRelay(t, publisher)
	first, second := pendingEvent(), pendingEvent()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM outbox_events").
		WithArgs(50).
		WillReturnRows(outboxRows(first, second))
	mock.ExpectExec("UPDATE outbox_events SET published_at").
		WithArgs(first.ID.String(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outbox_events SET published_at").
		WithArgs(second.ID.String(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := relay.process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, first.ID, publisher.published[0].ID)
	assert.Equal(t, second.AggregateID, publisher.published[1].AggregateID)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.EventsPublished))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRelay_NothingPending(t *testing.T) {
	publisher := &recordingPublisher{}
	relay, mock, _ := newRelay(t, publisher)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM outbox_events").WillReturnRows(outboxRows())
	mock.ExpectCommit()

	n, err := relay.process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, publisher.published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRelay_PublishFailureKeepsEventsPending(t *testing.T) {
	errBroker := errors.New("broker unavailable")
	publisher := &recordingPublisher{err: errBroker}
	relay, mock, metrics := newRelay(t, publisher)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM outbox_events").WillReturnRows(outboxRows(pendingEvent()))
	mock.ExpectRollback()

	_, err := relay.process(context.Background())
	assert.ErrorIs(t, err, errBroker)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.EventsFailed))
	assert.Zero(t, testutil.ToFloat64(metrics.EventsPublished))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRelay_RunStopsWithContext(t *testing.T) {
	relay, _, _ := newRelay(t, &recordingPublisher{})
	relay.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
