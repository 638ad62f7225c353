package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// client es una conexion WebSocket viva. readPump lee y despacha al router;
// writePump escribe lo que llega por send y mantiene el ping.
type client struct {
	id      string
	conn    *websocket.Conn
	handler *Handler
	limiter *rateLimiter
	logger  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, h *Handler) *client {
	return &client{
		id:      id,
		conn:    conn,
		handler: h,
		limiter: newRateLimiter(h.cfg.RateBurst, h.cfg.RateInterval),
		logger:  h.logger.With(zap.String("connection_id", id)),
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// deliver corre en la goroutine de entrega del bus, no puede bloquear.
// Un cliente que no consume su cola se desconecta.
func (c *client) deliver(event domain.ChatEvent) {
	frame, err := encodeOutbound(event)
	if err != nil {
		c.logger.Warn("failed to encode chat event", zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.logger.Warn("send queue full, closing slow client")
		go c.close()
	}
}

// close es idempotente; cortar la conexion hace que readPump termine.
// WriteControl puede llamarse en paralelo con writePump.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

func (c *client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(c.handler.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.allow() {
			c.logger.Debug("client rate limit exceeded, message discarded")
			continue
		}
		body, ok := parseInbound(raw)
		if !ok {
			c.logger.Debug("invalid frame discarded")
			continue
		}

		msg := service.InboundMessage{ConnectionID: c.id, Body: body}
		if identity, found := c.handler.sessions.IdentityOf(c.id); found {
			msg.Identity = &identity
		}
		c.handler.dispatcher.Dispatch(ctx, msg)
	}
}

func (c *client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("message exceeded maximum size", zap.Int64("limit", c.handler.cfg.MaxMessageSize))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("client closed connection")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.logger.Debug("connection closed")
	default:
		c.logger.Debug("websocket read error", zap.Error(err))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
