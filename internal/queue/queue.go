// Package queue carries queued import batch ids from the API to workers over
// RabbitMQ. It is optional: without a broker, workers find queued batches by
// polling the database.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Dispatcher announces a queued batch to workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, batchID int64) error
}

// BatchHandler processes one dispatched batch. Returning an error asks for
// one redelivery.
type BatchHandler func(ctx context.Context, batchID int64) error

// BatchMessage is the message body published for a queued batch.
type BatchMessage struct {
	BatchID int64 `json:"batch_id"`
}

// ErrMalformedMessage is returned for bodies that are not a BatchMessage.
var ErrMalformedMessage = errors.New("malformed batch message")

func encodeMessage(batchID int64) ([]byte, error) {
	return json.Marshal(BatchMessage{BatchID: batchID})
}

func decodeMessage(body []byte) (int64, error) {
	var m BatchMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.BatchID <= 0 {
		return 0, fmt.Errorf("%w: batch_id %d", ErrMalformedMessage, m.BatchID)
	}
	return m.BatchID, nil
}
