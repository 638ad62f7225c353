package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.ChatEvent
}

func (r *recorder) handle(ev domain.ChatEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []domain.ChatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChatEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) waitFor(t *testing.T, n int) []domain.ChatEvent {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return r.snapshot()
}

func closeBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.Close(ctx))
}

func TestBus_FanOutAcrossInstancesPreservesPublisherOrder(t *testing.T) {
	backbone := NewBackbone()
	instances := []*Bus{
		NewMemory(backbone, zap.NewNop(), Options{Origin: "node-a"}),
		NewMemory(backbone, zap.NewNop(), Options{Origin: "node-b"}),
	}
	for _, b := range instances {
		defer closeBus(t, b)
	}

	var recorders []*recorder
	for _, b := range instances {
		for i := 0; i < 2; i++ {
			rec := &recorder{}
			_, err := b.Subscribe("chat", rec.handle)
			require.NoError(t, err)
			recorders = append(recorders, rec)
		}
	}

	const perPublisher = 50
	var wg sync.WaitGroup
	for _, b := range instances {
		wg.Add(1)
		go func(b *Bus) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				b.Publish("chat", domain.ChatEvent{
					User:    b.Origin(),
					Message: fmt.Sprintf("%d", i),
					Class:   domain.EventClassOrdinary,
				})
			}
		}(b)
	}
	wg.Wait()

	for _, rec := range recorders {
		events := rec.waitFor(t, 2*perPublisher)
		require.Len(t, events, 2*perPublisher)

		next := map[string]int{}
		for _, ev := range events {
			require.Equal(t, fmt.Sprintf("%d", next[ev.User]), ev.Message, "out of order for %s", ev.User)
			next[ev.User]++
		}
		require.Equal(t, perPublisher, next["node-a"])
		require.Equal(t, perPublisher, next["node-b"])
	}
}

func TestBus_UnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	b := NewMemory(NewBackbone(), zap.NewNop(), Options{})
	defer closeBus(t, b)

	kept, gone := &recorder{}, &recorder{}
	_, err := b.Subscribe("chat", kept.handle)
	require.NoError(t, err)
	sub, err := b.Subscribe("chat", gone.handle)
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "hello"})
	kept.waitFor(t, 1)
	require.Empty(t, gone.snapshot())
}

func TestBus_ChannelsAreIsolated(t *testing.T) {
	b := NewMemory(NewBackbone(), zap.NewNop(), Options{})
	defer closeBus(t, b)

	chat, other := &recorder{}, &recorder{}
	_, err := b.Subscribe("chat", chat.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("other", other.handle)
	require.NoError(t, err)

	b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "hello"})
	chat.waitFor(t, 1)
	require.Empty(t, other.snapshot())
}

type failingTransport struct {
	mu        sync.Mutex
	published int
}

func (f *failingTransport) Publish(_ context.Context, _ string, _ []byte) error {
	f.mu.Lock()
	f.published++
	f.mu.Unlock()
	return errors.New("transport down")
}

func (f *failingTransport) Subscribe(_ context.Context, _ string, _ func([]byte)) (Closer, error) {
	return nopCloser{}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func TestBus_PublishFailureIsDroppedNotPropagated(t *testing.T) {
	transport := &failingTransport{}
	b := New(transport, zap.NewNop(), Options{})

	b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "hello"})
	b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "again"})
	closeBus(t, b)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Equal(t, 2, transport.published)
}

type blockingTransport struct {
	release chan struct{}
}

func (bt *blockingTransport) Publish(ctx context.Context, _ string, _ []byte) error {
	select {
	case <-bt.release:
	case <-ctx.Done():
	}
	return nil
}

func (bt *blockingTransport) Subscribe(_ context.Context, _ string, _ func([]byte)) (Closer, error) {
	return nopCloser{}, nil
}

func TestBus_PublishNeverBlocksWhenOutboxFull(t *testing.T) {
	bt := &blockingTransport{release: make(chan struct{})}
	b := New(bt, zap.NewNop(), Options{Buffer: 1, PublishTimeout: time.Second})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "flood"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full outbox")
	}
	close(bt.release)
	closeBus(t, b)
}

func TestBus_SubscribeAfterCloseFails(t *testing.T) {
	b := NewMemory(NewBackbone(), zap.NewNop(), Options{})
	closeBus(t, b)

	_, err := b.Subscribe("chat", func(domain.ChatEvent) {})
	require.ErrorIs(t, err, ErrClosed)

	// publicar despues de cerrar solo registra el descarte
	b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "late"})
}

func TestBus_SkipsUndecodablePayloads(t *testing.T) {
	backbone := NewBackbone()
	b := NewMemory(backbone, zap.NewNop(), Options{})
	defer closeBus(t, b)

	rec := &recorder{}
	_, err := b.Subscribe("chat", rec.handle)
	require.NoError(t, err)

	raw := backbone.Transport()
	require.NoError(t, raw.Publish(context.Background(), "chat", []byte("garbage")))
	require.NoError(t, raw.Publish(context.Background(), "chat", []byte(`{"origin":"x","event":{}}`)))
	b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "valid"})

	events := rec.waitFor(t, 1)
	require.Len(t, events, 1)
	require.Equal(t, "valid", events[0].Message)
}

func TestBus_PreservesEventFields(t *testing.T) {
	b := NewMemory(NewBackbone(), zap.NewNop(), Options{})
	defer closeBus(t, b)

	rec := &recorder{}
	_, err := b.Subscribe("chat", rec.handle)
	require.NoError(t, err)

	want := domain.ChatEvent{
		User:         "Alice",
		Message:      "hello",
		ProfileImage: "https://img/alice.png",
		Class:        domain.EventClassOrdinary,
	}
	b.Publish("chat", want)
	require.Equal(t, []domain.ChatEvent{want}, rec.waitFor(t, 1))
}

type slowSubscribeTransport struct {
	entered chan struct{}
	release chan struct{}

	mu         sync.Mutex
	subscribes int
	published  int
	lastCtx    context.Context
}

func (st *slowSubscribeTransport) Publish(_ context.Context, _ string, _ []byte) error {
	st.mu.Lock()
	st.published++
	st.mu.Unlock()
	return nil
}

func (st *slowSubscribeTransport) Subscribe(ctx context.Context, _ string, _ func([]byte)) (Closer, error) {
	st.mu.Lock()
	st.subscribes++
	st.lastCtx = ctx
	st.mu.Unlock()
	close(st.entered)
	<-st.release
	return nopCloser{}, nil
}

func TestBus_SlowUpstreamSubscribeDoesNotStallPublish(t *testing.T) {
	st := &slowSubscribeTransport{entered: make(chan struct{}), release: make(chan struct{})}
	b := New(st, zap.NewNop(), Options{SubscribeTimeout: time.Minute})

	subscribed := make(chan error, 2)
	go func() {
		_, err := b.Subscribe("chat", func(domain.ChatEvent) {})
		subscribed <- err
	}()
	<-st.entered

	published := make(chan struct{})
	go func() {
		b.Publish("chat", domain.ChatEvent{User: "Alice", Message: "while subscribing"})
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("publish blocked behind upstream subscribe")
	}

	go func() {
		_, err := b.Subscribe("chat", func(domain.ChatEvent) {})
		subscribed <- err
	}()
	close(st.release)
	require.NoError(t, <-subscribed)
	require.NoError(t, <-subscribed)

	st.mu.Lock()
	require.Equal(t, 1, st.subscribes)
	_, hasDeadline := st.lastCtx.Deadline()
	st.mu.Unlock()
	require.True(t, hasDeadline)

	closeBus(t, b)
}

func TestBus_SubscribeRacingCloseReturnsErrClosed(t *testing.T) {
	st := &slowSubscribeTransport{entered: make(chan struct{}), release: make(chan struct{})}
	b := New(st, zap.NewNop(), Options{})

	errs := make(chan error, 1)
	go func() {
		_, err := b.Subscribe("chat", func(domain.ChatEvent) {})
		errs <- err
	}()
	<-st.entered
	closeBus(t, b)
	close(st.release)

	require.ErrorIs(t, <-errs, ErrClosed)
	_, err := b.Subscribe("chat", func(domain.ChatEvent) {})
	require.ErrorIs(t, err, ErrClosed)
}
