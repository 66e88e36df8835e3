package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher schedules placeholder sweeps. A scheduled message sits in the
// delay queue for the sweep delay, then dead-letters into the main queue the
// sweeper consumes. By the time it arrives, a healthy stream has already
// updated or deleted the row, so the sweeper's conditional delete is a no-op.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

type SweepMessage struct {
	MessageID string `json:"message_id"`
}

func NewPublisher(url, queue string, delay time.Duration) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	mainQ := queue
	delayQ := queue + ".delay"

	// main queue: consumed by cmd/sweeper (declared identically there)
	if _, err := ch.QueueDeclare(
		mainQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	// delay queue: message TTL -> dead-letter into the main queue
	if _, err := ch.QueueDeclare(
		delayQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
			"x-message-ttl":             delay.Milliseconds(),
		},
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) ScheduleSweep(ctx context.Context, messageID string) error {
	body, err := json.Marshal(SweepMessage{MessageID: messageID})
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",                // default exchange
		p.queue+".delay",  // routing key = delay queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
