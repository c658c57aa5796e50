package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer tuning shared by every topic the dispatcher publishes to.
// Activity events are small JSON payloads, so short batch windows keep
// end-to-end latency low without hurting throughput.
const (
	writerBatchTimeout = 100 * time.Millisecond
	writerWriteTimeout = 5 * time.Second
)

// KafkaProducer publishes outbox rows to Kafka, creating one writer per
// topic on first use. A single producer instance backs the dispatcher
// for the life of the process.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages delivers msgs to topic synchronously. Delivery waits for
// acknowledgement from all in-sync replicas so a marked-published outbox
// row is never ahead of the broker.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
		BatchTimeout: writerBatchTimeout,
		WriteTimeout: writerWriteTimeout,
	}
	p.writers[topic] = writer
	return writer
}

// Close shuts down every writer created so far.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
