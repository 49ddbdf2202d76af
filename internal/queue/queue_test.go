package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acks++; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func TestMessageRoundTrip(t *testing.T) {
	body, err := encodeMessage(42)
	require.NoError(t, err)
	assert.JSONEq(t, `{"batch_id":42}`, string(body))

	id, err := decodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestDecodeMessage_Malformed(t *testing.T) {
	for _, body := range []string{"", "not json", `{"batch_id":0}`, `{"batch_id":-4}`} {
		_, err := decodeMessage([]byte(body))
		assert.ErrorIs(t, err, ErrMalformedMessage, body)
	}
}

func TestHandleDelivery(t *testing.T) {
	boom := errors.New("db down")

	tests := []struct {
		name        string
		body        string
		redelivered bool
		handler     BatchHandler
		wantAcks    int
		wantNacks   int
		wantRequeue bool
	}{
		{
			name:     "success acks",
			body:     `{"batch_id":7}`,
			handler:  func(context.Context, int64) error { return nil },
			wantAcks: 1,
		},
		{
			name:        "first failure requeues",
			body:        `{"batch_id":7}`,
			handler:     func(context.Context, int64) error { return boom },
			wantNacks:   1,
			wantRequeue: true,
		},
		{
			name:        "second failure drops",
			body:        `{"batch_id":7}`,
			redelivered: true,
			handler:     func(context.Context, int64) error { return boom },
			wantNacks:   1,
		},
		{
			name:        "panic requeues",
			body:        `{"batch_id":7}`,
			handler:     func(context.Context, int64) error { panic("nil map") },
			wantNacks:   1,
			wantRequeue: true,
		},
		{
			name:      "malformed body drops without calling handler",
			body:      `{}`,
			handler:   func(context.Context, int64) error { t.Fatal("handler called"); return nil },
			wantNacks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			handleDelivery(context.Background(), tt.handler, []byte(tt.body), tt.redelivered, ack)
			assert.Equal(t, tt.wantAcks, ack.acks)
			assert.Equal(t, tt.wantNacks, ack.nacks)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
		})
	}
}

func TestHandleDelivery_PassesBatchID(t *testing.T) {
	var got int64
	handleDelivery(context.Background(), func(_ context.Context, id int64) error {
		got = id
		return nil
	}, []byte(`{"batch_id":1234}`), false, &fakeAck{})
	assert.Equal(t, int64(1234), got)
}
