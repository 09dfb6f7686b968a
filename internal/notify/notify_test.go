package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	msg, err := NewMessage(LifecycleEvent{
		RegistrationID:      "reg-1",
		EventID:             "ev-1",
		UserID:              "user-1",
		Amount:              1500000,
		CurrentParticipants: 3,
		OccurredAt:          at,
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "reg-1", msg.MessageId)
	assert.Equal(t, at, msg.Timestamp)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "ev-1", body["event_id"])
	assert.Equal(t, float64(3), body["current_participants"])
	assert.NotContains(t, body, "payment_reference")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), KeyRegistrationCreated, LifecycleEvent{}))
	assert.NoError(t, p.Close())
}
