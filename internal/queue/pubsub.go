package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig configures the Pub/Sub queue.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	Subscription    string
	DeadLetterTopic string

	// MaxOutstanding bounds concurrently processed messages.
	// Default: 1
	MaxOutstanding int

	Logger zerolog.Logger
}

// MaxDeadLetterAttempts bounds redeliveries of a malformed message while the
// dead-letter topic rejects it. The message is then logged and dropped.
const MaxDeadLetterAttempts = 5

// PubSub is a Queue backed by a Google Cloud Pub/Sub topic and subscription.
// Malformed messages are republished to the dead-letter topic and acked.
type PubSub struct {
	client       *pubsub.Client
	publisher    *pubsub.Publisher
	deadLetter   *pubsub.Publisher
	subscriber   *pubsub.Subscriber
	subscription string
	logger       zerolog.Logger

	publishDeadLetter func(ctx context.Context, data []byte, attrs map[string]string) error

	mu         sync.Mutex
	dlFailures map[string]int
}

// settler acknowledges a received message. *pubsub.Message implements it.
type settler interface {
	Ack()
	Nack()
}

// received is the part of a Pub/Sub message needed to settle it.
type received struct {
	id          string
	data        []byte
	publishTime time.Time

	// attempt is the server-side delivery attempt, zero when the
	// subscription has no dead-letter policy.
	attempt int

	settler settler
}

// NewPubSub creates the client and its publishers and subscriber.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 1
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	q := &PubSub{
		client:       client,
		publisher:    client.Publisher(cfg.Topic),
		deadLetter:   client.Publisher(cfg.DeadLetterTopic),
		subscriber:   subscriber,
		subscription: cfg.Subscription,
		logger:       cfg.Logger,
	}
	q.publishDeadLetter = func(ctx context.Context, data []byte, attrs map[string]string) error {
		_, err := q.deadLetter.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
		return err
	}
	return q, nil
}

// Publish sends body and waits for the server-assigned message ID.
func (q *PubSub) Publish(ctx context.Context, body []byte) error {
	id, err := q.publisher.Publish(ctx, &pubsub.Message{Data: body}).Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	q.logger.Debug().Str("message_id", id).Msg("message published")
	return nil
}

// Consume receives messages until ctx is cancelled.
func (q *PubSub) Consume(ctx context.Context, h Handler) error {
	q.logger.Info().
		Str("subscription", q.subscription).
		Msg("starting pubsub receiver")

	return q.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		q.handle(ctx, h, msg)
	})
}

func (q *PubSub) handle(ctx context.Context, h Handler, msg *pubsub.Message) {
	m := received{
		id:          msg.ID,
		data:        msg.Data,
		publishTime: msg.PublishTime,
		settler:     msg,
	}
	if msg.DeliveryAttempt != nil {
		m.attempt = *msg.DeliveryAttempt
	}
	q.settle(ctx, m, h(ctx, msg.Data))
}

// settle applies the disposition of err to m.
func (q *PubSub) settle(ctx context.Context, m received, err error) {
	logger := q.logger.With().
		Str("message_id", m.id).
		Str("publish_time", m.publishTime.Format(time.RFC3339)).
		Logger()

	switch Classify(err) {
	case Ack:
		m.settler.Ack()
	case DeadLetter:
		logger.Warn().Err(err).Msg("dead-lettering message")
		attrs := map[string]string{"error": err.Error(), "original_id": m.id}
		if pubErr := q.publishDeadLetter(ctx, m.data, attrs); pubErr != nil {
			failures := q.deadLetterFailed(m.id, m.attempt)
			if failures >= MaxDeadLetterAttempts {
				logger.Error().
					Err(pubErr).
					Int("attempts", failures).
					Str("body", string(m.data)).
					Msg("dead-letter topic unavailable, dropping malformed message")
				q.forget(m.id)
				m.settler.Ack()
				return
			}
			logger.Error().Err(pubErr).Int("attempts", failures).Msg("dead-letter publish failed, nacking")
			m.settler.Nack()
			return
		}
		q.forget(m.id)
		m.settler.Ack()
	default:
		logger.Error().Err(err).Msg("message processing failed, nacking")
		m.settler.Nack()
	}
}

// deadLetterFailed records a failed dead-letter publish for id and returns the
// number of attempts so far. The server delivery attempt wins when larger, so
// the bound holds across worker restarts.
func (q *PubSub) deadLetterFailed(id string, attempt int) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dlFailures == nil {
		q.dlFailures = make(map[string]int)
	}
	q.dlFailures[id]++
	if n := q.dlFailures[id]; n > attempt {
		return n
	}
	return attempt
}

func (q *PubSub) forget(id string) {
	q.mu.Lock()
	delete(q.dlFailures, id)
	q.mu.Unlock()
}

// Close stops the publishers and closes the client.
func (q *PubSub) Close() error {
	q.publisher.Stop()
	q.deadLetter.Stop()
	return q.client.Close()
}
