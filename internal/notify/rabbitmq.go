package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lead-allocation/internal/logger"
	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
)

const (
	ExchangeName = "lead_notifications"
	ExchangeType = "topic"

	// AllLeadsKey binds to every new-lead notification.
	AllLeadsKey = "lead.new.#"
)

// SetupConn dials with a few retries and declares the topic exchange.
func SetupConn(url string) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.L().Warn("amqp_dial_retry", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

// RoutingKey is lead.new.<location>, lowercased with spaces as dashes.
func RoutingKey(n models.Notification) string {
	loc := strings.ToLower(strings.TrimSpace(n.Lead.Location))
	if loc == "" {
		loc = "unknown"
	}
	return "lead.new." + strings.ReplaceAll(loc, " ", "-")
}

type amqpPublisher struct {
	ch *amqp.Channel
}

func NewAMQPPublisher(ch *amqp.Channel) Publisher {
	return &amqpPublisher{ch: ch}
}

func (p *amqpPublisher) Publish(ctx context.Context, n models.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("could not marshal notification: %w", err)
	}
	return p.ch.PublishWithContext(ctx,
		ExchangeName,  // exchange
		RoutingKey(n), // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   n.ID,
			Timestamp:   n.CreatedAt,
			Body:        body,
		},
	)
}

// RecordDelivery is the consumer side of the exchange: it logs and
// counts every notification that came back from the broker.
func RecordDelivery(n models.Notification) error {
	metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
	logger.L().Info("notification_delivered", "id", n.ID, "lead", n.Lead.Name, "routing_key", RoutingKey(n))
	return nil
}

type amqpSubscriber struct {
	ch *amqp.Channel
}

func NewAMQPSubscriber(ch *amqp.Channel) Subscriber {
	return &amqpSubscriber{ch: ch}
}

func (s *amqpSubscriber) Subscribe(ctx context.Context, routingKey string, handler func(models.Notification) error) error {
	q, err := s.ch.QueueDeclare(
		"",    // random name
		false, // non-durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}

	if err := s.ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("could not bind queue: %w", err)
	}

	msgs, err := s.ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("could not start consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var n models.Notification
				if err := json.Unmarshal(d.Body, &n); err != nil {
					logger.L().Error("notification_decode_error", "err", err)
					continue
				}
				if err := handler(n); err != nil {
					logger.L().Error("notification_handler_error", "id", n.ID, "err", err)
				}
			}
		}
	}()

	return nil
}
