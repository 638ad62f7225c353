// Package bus difunde ChatEvents entre todos los procesos del servidor.
//
// Publish nunca bloquea: encola en un outbox acotado que una sola goroutine
// vacia en orden, asi los eventos de un mismo proceso llegan a todos los
// suscriptores en el orden en que se publicaron. Si el transporte falla el
// evento se descarta y queda en el log.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

var ErrClosed = errors.New("bus closed")

// Handler recibe cada evento entregado. Corre en la goroutine de entrega del
// bus: no debe bloquear.
type Handler func(event domain.ChatEvent)

// Options ajusta el comportamiento del bus. Los ceros toman valores por defecto.
type Options struct {
	Origin           string
	Buffer           int
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
}

// Bus multiplexa una suscripcion upstream por canal entre los handlers locales.
type Bus struct {
	transport      Transport
	logger         *zap.Logger
	origin           string
	publishTimeout   time.Duration
	subscribeTimeout time.Duration

	outbox chan outbound
	quit   chan struct{}
	done   chan struct{}

	// subMu serializa la apertura de suscripciones upstream; mu no se toma
	// mientras el transporte responde.
	subMu    sync.Mutex
	mu       sync.RWMutex
	channels map[string]*channelState
	nextID   uint64
	closed   bool

	closeOnce sync.Once
}

type channelState struct {
	upstream Closer
	handlers map[uint64]Handler
}

type outbound struct {
	channel string
	payload []byte
}

func New(transport Transport, logger *zap.Logger, opts Options) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	if opts.SubscribeTimeout <= 0 {
		opts.SubscribeTimeout = 5 * time.Second
	}
	b := &Bus{
		transport:        transport,
		logger:           logger.With(zap.String("bus_origin", opts.Origin)),
		origin:           opts.Origin,
		publishTimeout:   opts.PublishTimeout,
		subscribeTimeout: opts.SubscribeTimeout,
		outbox:           make(chan outbound, opts.Buffer),
		quit:             make(chan struct{}),
		done:             make(chan struct{}),
		channels:         make(map[string]*channelState),
	}
	go b.run()
	return b
}

// NewRedis construye un bus sobre Redis Pub/Sub.
func NewRedis(client RedisClient, logger *zap.Logger, opts Options) *Bus {
	return New(NewRedisTransport(client), logger, opts)
}

// NewMemory construye un bus sobre un Backbone en memoria. Varios buses sobre
// el mismo Backbone se comportan como procesos distintos.
func NewMemory(backbone *Backbone, logger *zap.Logger, opts Options) *Bus {
	return New(backbone.Transport(), logger, opts)
}

// Origin identifica a este proceso dentro de los sobres publicados.
func (b *Bus) Origin() string {
	return b.origin
}

// Publish encola el evento y vuelve de inmediato.
func (b *Bus) Publish(channel string, event domain.ChatEvent) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		b.logger.Warn("publish on closed bus, event dropped", zap.String("channel", channel))
		return
	}

	payload, err := encodeEnvelope(envelope{Origin: b.origin, Event: event})
	if err != nil {
		b.logger.Warn("encode chat event failed, event dropped", zap.Error(err))
		return
	}

	select {
	case b.outbox <- outbound{channel: channel, payload: payload}:
	default:
		b.logger.Warn("bus outbox full, event dropped",
			zap.String("channel", channel),
			zap.Int("buffer", cap(b.outbox)),
		)
	}
}

// Subscribe registra handler para channel. La primera suscripcion a un canal
// abre la suscripcion upstream; las siguientes solo agregan el handler local.
func (b *Bus) Subscribe(channel string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	if sub, ok, err := b.addHandler(channel, handler); ok {
		return sub, err
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()
	// Otro Subscribe pudo abrir el canal mientras esperabamos subMu.
	if sub, ok, err := b.addHandler(channel, handler); ok {
		return sub, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.subscribeTimeout)
	defer cancel()
	upstream, err := b.transport.Subscribe(ctx, channel, func(payload []byte) {
		b.deliver(channel, payload)
	})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = upstream.Close()
		return nil, ErrClosed
	}
	state := &channelState{upstream: upstream, handlers: make(map[uint64]Handler)}
	b.channels[channel] = state
	b.logger.Info("bus channel subscribed", zap.String("channel", channel))
	return b.registerLocked(state, channel, handler), nil
}

// addHandler registra handler si el canal ya tiene suscripcion upstream.
// ok=false indica que hay que abrirla.
func (b *Bus) addHandler(channel string, handler Handler) (*Subscription, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, true, ErrClosed
	}
	state, ok := b.channels[channel]
	if !ok {
		return nil, false, nil
	}
	return b.registerLocked(state, channel, handler), true, nil
}

func (b *Bus) registerLocked(state *channelState, channel string, handler Handler) *Subscription {
	b.nextID++
	id := b.nextID
	state.handlers[id] = handler
	return &Subscription{bus: b, channel: channel, id: id}
}

// Close vacia el outbox (hasta que ctx expire) y cierra las suscripciones upstream.
func (b *Bus) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.quit)
		select {
		case <-b.done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		b.mu.Lock()
		for channel, state := range b.channels {
			if cerr := state.upstream.Close(); cerr != nil {
				b.logger.Warn("close upstream subscription failed", zap.String("channel", channel), zap.Error(cerr))
			}
		}
		b.channels = make(map[string]*channelState)
		b.mu.Unlock()
	})
	return err
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case msg := <-b.outbox:
			b.send(msg)
		case <-b.quit:
			for {
				select {
				case msg := <-b.outbox:
					b.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) send(msg outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()
	if err := b.transport.Publish(ctx, msg.channel, msg.payload); err != nil {
		b.logger.Warn("bus publish failed, event dropped",
			zap.String("channel", msg.channel),
			zap.Error(err),
		)
	}
}

func (b *Bus) deliver(channel string, payload []byte) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		b.logger.Warn("undecodable bus payload skipped", zap.String("channel", channel), zap.Error(err))
		return
	}

	b.mu.RLock()
	state, ok := b.channels[channel]
	var handlers []Handler
	if ok {
		handlers = make([]Handler, 0, len(state.handlers))
		for _, h := range state.handlers {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env.Event)
	}
}

func (b *Bus) unsubscribe(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.channels[channel]; ok {
		delete(state.handlers, id)
	}
}

// Subscription cancela un handler registrado con Subscribe.
type Subscription struct {
	bus     *Bus
	channel string
	id      uint64
	once    sync.Once
}

// Unsubscribe es idempotente.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.channel, s.id)
	})
}
