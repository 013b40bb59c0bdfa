package realtime_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-patungan/internal/realtime"
)

func TestEmitPublishesToSessionChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, realtime.Channel("s-1"))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	bus := &realtime.Bus{Redis: client, Logger: zerolog.Nop()}
	bus.Emit(ctx, realtime.TopicPaymentPaid, "s-1", map[string]any{"participantId": "p-1"})

	select {
	case msg := <-sub.Channel():
		var ev realtime.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		require.Equal(t, realtime.TopicPaymentPaid, ev.Topic)
		require.Equal(t, "s-1", ev.SessionID)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		require.Equal(t, "p-1", payload["participantId"])
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestDefaultTopicsCoverLifecycle(t *testing.T) {
	t.Parallel()

	topics := realtime.DefaultTopics()
	require.Contains(t, topics, realtime.TopicSessionCreated)
	require.Contains(t, topics, realtime.TopicPaymentPaid)
	require.Contains(t, topics, realtime.TopicSessionCompleted)
	require.Contains(t, topics, realtime.TopicSessionCancelled)
}

func TestEmitNilClientIsNoop(t *testing.T) {
	t.Parallel()

	var bus *realtime.Bus
	bus.Emit(context.Background(), realtime.TopicSessionCreated, "s-1", nil)

	bus = &realtime.Bus{Logger: zerolog.Nop()}
	bus.Emit(context.Background(), realtime.TopicSessionCreated, "s-1", nil)
}
