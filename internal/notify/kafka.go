package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes notifications as JSON envelopes to a single topic, keyed by
// the remote ticket id so per-ticket ordering survives partitioning.
type Kafka struct {
	writer *kafka.Writer
	log    *slog.Logger
}

func NewKafka(brokers []string, topic string, log *slog.Logger) *Kafka {
	return &Kafka{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (k *Kafka) TicketCreated(ctx context.Context, n Notification) error {
	return k.publish(ctx, EventTicketCreated, n)
}

func (k *Kafka) TicketUpdated(ctx context.Context, n Notification) error {
	return k.publish(ctx, EventTicketUpdated, n)
}

func (k *Kafka) publish(ctx context.Context, event string, n Notification) error {
	envelope := struct {
		Event string `json:"event"`
		Notification
	}{Event: event, Notification: n}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(n.Ticket.ZendeskID, 10)),
		Value: body,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.Error("kafka publish failed", "event", event, "zendesk_id", n.Ticket.ZendeskID, "error", err)
		return fmt.Errorf("publish %s: %w", event, err)
	}
	k.log.Debug("notification published", "event", event, "zendesk_id", n.Ticket.ZendeskID)
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
