package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClient es el subconjunto de *redis.Client que usa el transporte.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type redisTransport struct {
	client RedisClient
}

func NewRedisTransport(client RedisClient) Transport {
	return &redisTransport{client: client}
}

func (t *redisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload).Err()
}

// Subscribe espera la confirmacion de SUBSCRIBE antes de volver, para que
// ningun evento publicado despues se pierda.
func (t *redisTransport) Subscribe(ctx context.Context, channel string, deliver func(payload []byte)) (Closer, error) {
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %q: %w", channel, err)
	}

	msgs := ps.Channel()
	go func() {
		for msg := range msgs {
			deliver([]byte(msg.Payload))
		}
	}()
	return ps, nil
}
