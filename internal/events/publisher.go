package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ndunguloren96/ltronix-shop/internal/checkout"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "storefront-payments"

	EventPaymentOutcome = "payment.outcome"
)

// PaymentOutcome is the message published once per finished payment attempt.
type PaymentOutcome struct {
	TransactionID int64     `json:"transaction_id"`
	OrderID       int64     `json:"order_id"`
	Outcome       string    `json:"outcome"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	ReceiptNumber string    `json:"mpesa_receipt_number,omitempty"`
	Message       string    `json:"message"`
	Polls         int       `json:"polls"`
	ElapsedMS     int64     `json:"elapsed_ms"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w)
}

func NewPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, now: time.Now}
}

// Notify publishes the outcome keyed by transaction id so all events of one
// attempt land on the same partition.
func (p *KafkaPublisher) Notify(ctx context.Context, out checkout.Outcome) error {
	tx := out.Transaction
	payload := PaymentOutcome{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		Outcome:       string(out.Kind),
		Status:        tx.Status.String(),
		Amount:        tx.Amount.StringFixed(2),
		ReceiptNumber: tx.ReceiptNumber,
		Message:       out.Message,
		Polls:         out.Polls,
		ElapsedMS:     out.Elapsed.Milliseconds(),
		OccurredAt:    p.now().UTC(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payment outcome: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(tx.ID, 10)),
		Value: data,
		Time:  payload.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventPaymentOutcome)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish payment outcome %d: %w", tx.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event; used when no brokers are configured.
type Nop struct{}

func (Nop) Notify(context.Context, checkout.Outcome) error { return nil }

func (Nop) Close() error { return nil }
