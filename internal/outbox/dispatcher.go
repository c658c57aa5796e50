// Package outbox persists and delivers domain events to Kafka.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/ecolog/internal/logging"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type rowStore interface {
	FetchAndClaim(ctx context.Context, batchSize int) ([]Row, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// Dispatcher drains the outbox table and delivers events to Kafka. Rows
// that fail delivery stay unpublished and are retried on the next cycle.
type Dispatcher struct {
	store            rowStore
	producer         messageWriter
	log              logging.Logger
	pollInterval     time.Duration
	batchSize        int
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store rowStore, producer messageWriter, log logging.Logger, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		store:            store,
		producer:         producer,
		log:              log,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error(ctx, "outbox dispatcher error", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	rows, err := d.store.FetchAndClaim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, rows); err != nil {
		failedCounter.Add(float64(len(rows)))
		d.log.Warn(ctx, "outbox delivery failed, rows left for retry",
			"rows", len(rows), "error", err)
		return nil
	}

	deliveredCounter.Add(float64(len(rows)))

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return d.store.MarkPublished(ctx, ids)
}

func (d *Dispatcher) deliver(ctx context.Context, rows []Row) error {
	byTopic := make(map[string][]kafka.Message)
	for _, row := range rows {
		byTopic[row.Topic] = append(byTopic[row.Topic], kafka.Message{
			Key:   []byte(row.PartitionKey),
			Value: row.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(row.EventType)},
			},
			Time: row.CreatedAt,
		})
	}

	for topic, messages := range byTopic {
		if err := d.producer.WriteMessages(ctx, topic, messages...); err != nil {
			return err
		}
	}
	return nil
}
