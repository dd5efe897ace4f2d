package infra

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"provider-gateway/provider/domain"

	"github.com/segmentio/kafka-go"
)

// messageWriter é o pedaço do *kafka.Writer que o sink usa.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlertSink publica os eventos de limiar num tópico, chaveados pela
// conta (mesma partição, ordem por conta preservada).
type KafkaAlertSink struct {
	w     messageWriter
	topic string
}

func NewKafkaAlertSink(brokers []string, topic string) *KafkaAlertSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaAlertSink{w: w, topic: topic}
}

func newKafkaAlertSinkWithWriter(w messageWriter, topic string) *KafkaAlertSink {
	return &KafkaAlertSink{w: w, topic: topic}
}

func (s *KafkaAlertSink) Publish(ctx context.Context, ev domain.AlertEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AccountID),
		Value: body,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("quota.threshold")},
			{Key: "tier", Value: []byte(strings.ToLower(ev.Tier))},
		},
	})
}

func (s *KafkaAlertSink) Close() error {
	return s.w.Close()
}
