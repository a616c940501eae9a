package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/constants"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	writer := &captureWriter{}
	publisher := &KafkaPublisher{writer: writer, topic: "checkout.events"}

	event := NewEvent(constants.EventOrderCreated, 12, map[string]interface{}{"order_no": "OD1"})
	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "order.created-12", string(msg.Key))
	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, constants.EventOrderCreated, decoded.EventType)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	publisher := &KafkaPublisher{writer: &captureWriter{err: errors.New("broker down")}}
	err := publisher.Publish(context.Background(), NewEvent(constants.EventPaymentFailed, 3, nil))
	assert.ErrorContains(t, err, "broker down")
}

func TestNewPublisherDisabledIsNoop(t *testing.T) {
	publisher := NewPublisher(config.KafkaConfig{Enabled: false})
	_, ok := publisher.(NoopPublisher)
	assert.True(t, ok)
	assert.NoError(t, publisher.Publish(context.Background(), NewEvent("x", 1, nil)))
}
