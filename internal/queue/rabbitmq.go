package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DeadLetterSuffix is appended to the queue name to form the dead-letter queue.
const DeadLetterSuffix = ".dlq"

// RabbitMQConfig configures the RabbitMQ queue.
type RabbitMQConfig struct {
	URL       string
	QueueName string

	// Prefetch bounds unacknowledged deliveries and the number of
	// concurrent handler invocations.
	// Default: 1
	Prefetch int

	Logger zerolog.Logger
}

// RabbitMQ is a Queue backed by a durable RabbitMQ queue with a dead-letter queue.
type RabbitMQ struct {
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	queue     string
	prefetch  int
	logger    zerolog.Logger
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewRabbitMQ connects and declares the queue topology.
func NewRabbitMQ(cfg RabbitMQConfig) (*RabbitMQ, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	cfg.Logger.Info().
		Str("queue", cfg.QueueName).
		Int("prefetch", cfg.Prefetch).
		Msg("rabbitmq connected")

	return &RabbitMQ{
		conn:     conn,
		pubCh:    ch,
		queue:    cfg.QueueName,
		prefetch: cfg.Prefetch,
		logger:   cfg.Logger,
	}, nil
}

// declareTopology declares the work queue and its dead-letter queue. Rejected
// deliveries are routed through the default exchange to name+".dlq".
func declareTopology(ch *amqp.Channel, name string) error {
	dlq := name + DeadLetterSuffix

	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		},
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

// Publish sends a persistent message and waits for the broker confirm.
func (q *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	q.mu.Lock()
	confirm, err := q.pubCh.PublishWithDeferredConfirmWithContext(ctx,
		"",      // default exchange
		q.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", q.queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await publish confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("publish to %s: broker rejected message", q.queue)
	}
	return nil
}

// Consume processes deliveries with up to Prefetch concurrent handlers.
func (q *RabbitMQ) Consume(ctx context.Context, h Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		q.queue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (we'll manually ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	q.logger.Info().Str("queue", q.queue).Msg("started consuming")

	errClosed := errors.New("delivery channel closed")
	var wg sync.WaitGroup
	errs := make(chan error, q.prefetch)

	for i := 0; i < q.prefetch; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						errs <- errClosed
						return
					}
					q.handle(ctx, h, d)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	if ctx.Err() != nil {
		return nil
	}
	if err := <-errs; err != nil {
		return fmt.Errorf("consume %s: %w", q.queue, err)
	}
	return nil
}

func (q *RabbitMQ) handle(ctx context.Context, h Handler, d amqp.Delivery) {
	err := h(ctx, d.Body)
	disposition := Classify(err)

	logger := q.logger.With().
		Uint64("delivery_tag", d.DeliveryTag).
		Bool("redelivered", d.Redelivered).
		Str("disposition", disposition.String()).
		Logger()

	var ackErr error
	switch disposition {
	case Ack:
		ackErr = d.Ack(false)
	case DeadLetter:
		logger.Warn().Err(err).Msg("dead-lettering message")
		ackErr = d.Nack(false, false)
	default:
		logger.Error().Err(err).Msg("message processing failed, requeueing")
		ackErr = d.Nack(false, true)
	}
	if ackErr != nil {
		logger.Error().Err(ackErr).Msg("failed to settle delivery")
	}
}

// Ping reports whether the connection is still open.
func (q *RabbitMQ) Ping(context.Context) error {
	if q.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the publish channel and the connection.
func (q *RabbitMQ) Close() error {
	var err error
	q.closeOnce.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		if cerr := q.pubCh.Close(); cerr != nil {
			q.logger.Warn().Err(cerr).Msg("error closing channel")
		}
		err = q.conn.Close()
		q.logger.Info().Msg("rabbitmq connection closed")
	})
	return err
}
