package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"crypto_signals_backend/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelayPublish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	h := New(0)
	defer h.Shutdown()
	relay := NewRedisRelay(db, h)

	env := Envelope{Type: TypeNotification, Notification: &models.Notification{ID: 3, Title: "Maintenance"}}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	mock.ExpectPublish(RelayChannel, payload).SetVal(2)
	require.NoError(t, relay.Publish(context.Background(), env))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRelayPublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	h := New(0)
	defer h.Shutdown()
	relay := NewRedisRelay(db, h)

	env := Envelope{Type: TypeSignal}
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	mock.ExpectPublish(RelayChannel, payload).SetErr(errors.New("connection refused"))
	err = relay.Publish(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), RelayChannel)
}
