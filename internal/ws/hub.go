package ws

import (
	"context"
	"sync"
)

// Hub lleva la cuenta de las conexiones vivas de este proceso. No reparte
// mensajes: la difusion la hace el bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	closing bool
	wg      sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// add devuelve false si el hub ya se esta cerrando.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(1)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	h.wg.Done()
}

// Count devuelve las conexiones abiertas en este proceso.
func (h *Hub) Count() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown deja de aceptar conexiones, cierra las abiertas y espera a que
// terminen su limpieza o a que venza ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	open := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		open = append(open, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		go c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
