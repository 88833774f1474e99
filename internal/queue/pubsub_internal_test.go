package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	acks, nacks int
}

func (s *fakeSettler) Ack()  { s.acks++ }
func (s *fakeSettler) Nack() { s.nacks++ }

type deadLetterCall struct {
	data  []byte
	attrs map[string]string
}

func newTestPubSub(publishErr error) (*PubSub, *[]deadLetterCall) {
	var calls []deadLetterCall
	q := &PubSub{
		subscription: "forecast-workers",
		logger:       zerolog.Nop(),
		publishDeadLetter: func(_ context.Context, data []byte, attrs map[string]string) error {
			calls = append(calls, deadLetterCall{data: data, attrs: attrs})
			return publishErr
		},
	}
	return q, &calls
}

func message(id string, s *fakeSettler) received {
	return received{id: id, data: []byte(`{"task_id":"nope"}`), publishTime: time.Now(), settler: s}
}

func TestPubSub_SettleAcksSuccess(t *testing.T) {
	q, calls := newTestPubSub(nil)
	s := &fakeSettler{}

	q.settle(context.Background(), message("m1", s), nil)

	assert.Equal(t, 1, s.acks)
	assert.Zero(t, s.nacks)
	assert.Empty(t, *calls)
}

func TestPubSub_SettleNacksTransientError(t *testing.T) {
	q, calls := newTestPubSub(nil)
	s := &fakeSettler{}

	q.settle(context.Background(), message("m1", s), errors.New("weather source down"))

	assert.Zero(t, s.acks)
	assert.Equal(t, 1, s.nacks)
	assert.Empty(t, *calls)
}

func TestPubSub_SettleDeadLettersMalformed(t *testing.T) {
	q, calls := newTestPubSub(nil)
	s := &fakeSettler{}

	q.settle(context.Background(), message("m1", s), ErrMalformedMessage)

	assert.Equal(t, 1, s.acks)
	assert.Zero(t, s.nacks)
	require.Len(t, *calls, 1)
	assert.Equal(t, `{"task_id":"nope"}`, string((*calls)[0].data))
	assert.Equal(t, "m1", (*calls)[0].attrs["original_id"])
	assert.Equal(t, ErrMalformedMessage.Error(), (*calls)[0].attrs["error"])
}

func TestPubSub_SettleDropsMalformedWhenDeadLetterKeepsFailing(t *testing.T) {
	q, calls := newTestPubSub(errors.New("topic not found"))
	s := &fakeSettler{}

	for i := 1; i < MaxDeadLetterAttempts; i++ {
		q.settle(context.Background(), message("m1", s), ErrMalformedMessage)
		assert.Equal(t, i, s.nacks)
		assert.Zero(t, s.acks)
	}

	q.settle(context.Background(), message("m1", s), ErrMalformedMessage)
	assert.Equal(t, 1, s.acks)
	assert.Equal(t, MaxDeadLetterAttempts-1, s.nacks)
	assert.Len(t, *calls, MaxDeadLetterAttempts)
	assert.Empty(t, q.dlFailures)
}

func TestPubSub_SettleUsesServerDeliveryAttempt(t *testing.T) {
	q, _ := newTestPubSub(errors.New("topic not found"))
	s := &fakeSettler{}

	m := message("m2", s)
	m.attempt = MaxDeadLetterAttempts
	q.settle(context.Background(), m, ErrMalformedMessage)

	assert.Equal(t, 1, s.acks)
	assert.Zero(t, s.nacks)
}
