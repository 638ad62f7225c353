package bus

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

type mockRedisPublisher struct {
	lastChannel string
	lastMessage interface{}
	err         error
}

func (m *mockRedisPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	m.lastChannel = channel
	m.lastMessage = message
	cmd := redis.NewIntCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func (m *mockRedisPublisher) Subscribe(_ context.Context, _ ...string) *redis.PubSub {
	return nil
}

func TestRedisTransportPublish(t *testing.T) {
	mock := &mockRedisPublisher{}
	tr := NewRedisTransport(mock)

	require.NoError(t, tr.Publish(context.Background(), "chat", []byte("payload")))
	require.Equal(t, "chat", mock.lastChannel)
	require.Equal(t, []byte("payload"), mock.lastMessage)

	mock.err = errors.New("redis down")
	require.Error(t, tr.Publish(context.Background(), "chat", []byte("payload")))
}

// Requiere un Redis real: REDIS_ADDR=localhost:6379 go test ./internal/bus/...
func TestRedisBus_FanOutBetweenInstances(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	channel := "chat-test-" + time.Now().Format("150405.000000")
	a := NewRedis(newClient(), zap.NewNop(), Options{Origin: "a"})
	b := NewRedis(newClient(), zap.NewNop(), Options{Origin: "b"})
	defer closeBus(t, a)
	defer closeBus(t, b)

	recA, recB := &recorder{}, &recorder{}
	_, err := a.Subscribe(channel, recA.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(channel, recB.handle)
	require.NoError(t, err)

	a.Publish(channel, domain.ChatEvent{User: "Alice", Message: "1"})
	a.Publish(channel, domain.ChatEvent{User: "Alice", Message: "2"})

	for _, rec := range []*recorder{recA, recB} {
		events := rec.waitFor(t, 2)
		require.Equal(t, "1", events[0].Message)
		require.Equal(t, "2", events[1].Message)
	}
}
