package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"llm-chat/internal/bus"
	"llm-chat/internal/domain"
	"llm-chat/internal/service"
)

const (
	defaultMaxMessageSize = 4096
	defaultChannel        = "chat"
)

type Config struct {
	Channel        string
	AllowedOrigins []string
	MaxMessageSize int64
	RateBurst      int
	RateInterval   time.Duration
}

// Sessions es la parte de la SessionRegistry que usa el handler.
type Sessions interface {
	OnConnect(connID string, identity *domain.Identity) domain.Connection
	OnDisconnect(connID string)
	IdentityOf(connID string) (domain.Identity, bool)
}

type Subscriber interface {
	Subscribe(channel string, handler bus.Handler) (*bus.Subscription, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg service.InboundMessage)
}

// IdentityResolver devuelve nil cuando el token falta o no es valido.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) *domain.Identity
}

// Handler atiende GET /ws.
type Handler struct {
	cfg        Config
	hub        *Hub
	sessions   Sessions
	subscriber Subscriber
	dispatcher Dispatcher
	resolver   IdentityResolver
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(cfg Config, hub *Hub, sessions Sessions, subscriber Subscriber, dispatcher Dispatcher, resolver IdentityResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub()
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	h := &Handler{
		cfg:        cfg,
		hub:        hub,
		sessions:   sessions,
		subscriber: subscriber,
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     logger,
	}
	policy := newOriginPolicy(cfg.AllowedOrigins, logger)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}
	return h
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

// ServeHTTP bloquea mientras la conexion este abierta.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var identity *domain.Identity
	if h.resolver != nil {
		identity = h.resolver.Resolve(r.Context(), tokenFromRequest(r))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade ya respondio al cliente.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, h)
	if !h.hub.add(c) {
		c.logger.Info("server shutting down, connection refused")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer h.hub.remove(c)

	sub, err := h.subscriber.Subscribe(h.cfg.Channel, c.deliver)
	if err != nil {
		c.logger.Warn("chat subscription failed", zap.Error(err))
		c.close()
		return
	}
	defer sub.Unsubscribe()

	h.sessions.OnConnect(c.id, identity)
	defer h.sessions.OnDisconnect(c.id)

	go c.writePump()
	c.readPump(r.Context())
}

// tokenFromRequest busca el access token en Authorization, ?token= o la cookie token.
func tokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
