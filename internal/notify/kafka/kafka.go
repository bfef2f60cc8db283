// Package kafka publishes signals that need attention to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/pulse/internal/triage"
)

// EventType identifies attention events on the topic.
const EventType = "signal.attention"

// Event is the JSON value of every published message.
type Event struct {
	Type      string                  `json:"type"`
	EmittedAt time.Time               `json:"emitted_at"`
	Layer     triage.Layer            `json:"layer"`
	Signal    triage.ClassifiedSignal `json:"signal"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier publishes classified signals keyed by signal ID, so all events
// for one signal land on the same partition.
type Notifier struct {
	w      messageWriter
	topic  string
	logger log.Logger
	now    func() time.Time
}

var _ triage.Notifier = (*Notifier)(nil)

// New creates a notifier writing to topic on brokers.
func New(brokers []string, topic string, logger log.Logger) *Notifier {
	return newNotifier(NewWriter(brokers, topic), topic, logger)
}

// NewWriter returns a synchronous writer that waits for the leader's ack.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
}

func newNotifier(w messageWriter, topic string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		w:      w,
		topic:  topic,
		logger: logger,
		now:    time.Now,
	}
}

// Notify publishes cs as an Event.
func (n *Notifier) Notify(ctx context.Context, cs *triage.ClassifiedSignal) error {
	msg, err := n.buildMessage(cs)
	if err != nil {
		return err
	}
	if err := n.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", n.topic, err)
	}
	n.logger.Info(ctx, "kafka notification published", "signal_id", cs.ID, "topic", n.topic)
	return nil
}

// Close flushes pending writes and releases the writer.
func (n *Notifier) Close() error {
	return n.w.Close()
}

func (n *Notifier) buildMessage(cs *triage.ClassifiedSignal) (kafka.Message, error) {
	now := n.now().UTC()
	body, err := json.Marshal(Event{
		Type:      EventType,
		EmittedAt: now,
		Layer:     cs.DecisionType.Layer(),
		Signal:    *cs,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(cs.ID),
		Value: body,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(EventType)},
		},
	}, nil
}
