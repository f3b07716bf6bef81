package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/aweilerffp/marketing-machine-sub001/pkg/logging"
)

const schemaVersion = "1.0"

// Producer publishes post lifecycle events.
type Producer struct {
	client *kgo.Client
	logger logging.Logger
	topic  string
	source string
}

// NewProducer creates a new Kafka producer for lifecycle events
func NewProducer(brokers []string, topic, source string, logger logging.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(source),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger,
		topic:  topic,
		source: source,
	}, nil
}

// Close flushes and closes the underlying client
func (p *Producer) Close() {
	p.client.Close()
}

// GetClient returns the underlying kgo.Client for health checks
func (p *Producer) GetClient() *kgo.Client {
	return p.client
}

// PublishPostEvent produces a lifecycle event keyed by post id. Events are
// best effort: callers log and continue on error, transitions never block
// on the broker.
func (p *Producer) PublishPostEvent(ctx context.Context, eventType, companyID, postID string, data map[string]interface{}) error {
	event := PostEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Source:        p.source,
		CompanyID:     companyID,
		PostID:        postID,
		Data:          data,
		SchemaVersion: schemaVersion,
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(postID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "schema_version", Value: []byte(schemaVersion)},
		},
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(produceCtx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}

	return nil
}
