package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

// SessionRegistry asocia cada conexion abierta con su identidad (o con nada,
// si es anonima). Es el unico mapa mutado desde varias conexiones a la vez.
type SessionRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex
	conns  map[string]domain.Connection
}

func NewSessionRegistry(logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		logger: logger,
		conns:  make(map[string]domain.Connection),
	}
}

// OnConnect registra la conexion. Nunca falla: las anonimas tambien se guardan.
func (r *SessionRegistry) OnConnect(connID string, identity *domain.Identity) domain.Connection {
	conn := domain.Connection{ID: connID, CreatedAt: time.Now().UTC()}
	if identity != nil {
		id := *identity
		conn.Identity = &id
	}

	r.mu.Lock()
	r.conns[connID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	if conn.Identity != nil {
		r.logger.Info("client connected",
			zap.String("connection_id", connID),
			zap.String("external_id", conn.Identity.ExternalID),
			zap.String("display_name", conn.Identity.DisplayName),
			zap.Int("connections", total),
		)
	} else {
		r.logger.Info("anonymous client connected",
			zap.String("connection_id", connID),
			zap.Int("connections", total),
		)
	}
	return conn
}

// OnDisconnect es idempotente: un segundo cierre no hace nada.
func (r *SessionRegistry) OnDisconnect(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.Info("client disconnected",
		zap.String("connection_id", connID),
		zap.Bool("anonymous", conn.Anonymous()),
		zap.Duration("duration", time.Since(conn.CreatedAt)),
		zap.Int("connections", total),
	)
}

func (r *SessionRegistry) IdentityOf(connID string) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	if !ok || conn.Identity == nil {
		return domain.Identity{}, false
	}
	return *conn.Identity, true
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
