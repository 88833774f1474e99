// Package queue provides the durable at-least-once channel between the API
// and the forecast workers.
package queue

import (
	"context"
	"errors"
)

// ErrMalformedMessage marks a message that can never be processed. Handlers
// wrap it to have the message dead-lettered instead of redelivered.
var ErrMalformedMessage = errors.New("malformed message")

// Handler processes one message body. A nil return acknowledges the message.
type Handler func(ctx context.Context, body []byte) error

// Publisher enqueues messages.
type Publisher interface {
	// Publish returns once the broker has accepted the message.
	Publish(ctx context.Context, body []byte) error
}

// Consumer delivers messages to a handler.
type Consumer interface {
	// Consume blocks, invoking h for each delivery, until ctx is cancelled
	// or the underlying transport fails.
	Consume(ctx context.Context, h Handler) error
}

// Queue is a Publisher and Consumer over one named channel.
type Queue interface {
	Publisher
	Consumer
	Close() error
}

// Disposition is what happens to a delivery after its handler returns.
type Disposition int

const (
	// Ack removes the message.
	Ack Disposition = iota
	// Requeue returns the message for redelivery.
	Requeue
	// DeadLetter moves the message aside without retrying it.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Classify maps a handler result to a disposition.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrMalformedMessage):
		return DeadLetter
	default:
		return Requeue
	}
}
