package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/dispatch-api/pkg/messaging"
)

func setupBroker(t *testing.T) messaging.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBroker(client, zerolog.Nop())
}

func TestRedisBroker_PublishSubscribe(t *testing.T) {
	broker := setupBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := broker.Subscribe(ctx, "dispatch.events")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "dispatch.events", map[string]string{"type": "report.submitted"}))

	select {
	case msg := <-msgs:
		var got map[string]string
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "report.submitted", got["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBrokerAdapter_Subscribe(t *testing.T) {
	adapter := messaging.NewBrokerAdapter(setupBroker(t), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	require.NoError(t, adapter.Subscribe(ctx, "dispatch.events", func(ctx context.Context, b []byte) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		received <- b
		return nil
	}))

	require.NoError(t, adapter.Publish(ctx, "dispatch.events", []byte(`{"id":"1"}`)))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"id":"1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
