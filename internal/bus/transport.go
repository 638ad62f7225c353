package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Transport es el canal publish/subscribe alcanzable por todos los procesos.
// deliver se invoca de forma secuencial, en el orden en que llegan los mensajes.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, deliver func(payload []byte)) (Closer, error)
}

// Closer libera una suscripcion upstream. No debe esperar a que termine una
// entrega en curso.
type Closer interface {
	Close() error
}

var ErrSubscriberBacklog = errors.New("subscriber backlog full")

// Backbone es un transporte en memoria compartido por varios buses. Sirve
// para un unico proceso y para simular varios procesos en tests.
type Backbone struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
}

func NewBackbone() *Backbone {
	return &Backbone{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: 1024,
	}
}

// Transport devuelve la vista Transport del backbone.
func (bb *Backbone) Transport() Transport {
	return memoryTransport{backbone: bb}
}

type memoryTransport struct {
	backbone *Backbone
}

func (t memoryTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bb := t.backbone
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	dropped := 0
	for sub := range bb.subs[channel] {
		select {
		case sub.queue <- payload:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d subscribers", ErrSubscriberBacklog, dropped)
	}
	return nil
}

func (t memoryTransport) Subscribe(_ context.Context, channel string, deliver func(payload []byte)) (Closer, error) {
	bb := t.backbone
	sub := &memorySubscription{
		backbone: bb,
		channel:  channel,
		queue:    make(chan []byte, bb.buffer),
		quit:     make(chan struct{}),
	}

	bb.mu.Lock()
	if bb.subs[channel] == nil {
		bb.subs[channel] = make(map[*memorySubscription]struct{})
	}
	bb.subs[channel][sub] = struct{}{}
	bb.mu.Unlock()

	go sub.loop(deliver)
	return sub, nil
}

type memorySubscription struct {
	backbone *Backbone
	channel  string
	queue    chan []byte
	quit     chan struct{}
	once     sync.Once
}

func (s *memorySubscription) loop(deliver func(payload []byte)) {
	for {
		select {
		case <-s.quit:
			return
		case payload := <-s.queue:
			deliver(payload)
		}
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		bb := s.backbone
		bb.mu.Lock()
		delete(bb.subs[s.channel], s)
		if len(bb.subs[s.channel]) == 0 {
			delete(bb.subs, s.channel)
		}
		bb.mu.Unlock()
		close(s.quit)
	})
	return nil
}
