package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reporta conexiones abiertas (ws.Hub, SessionRegistry).
type ConnectionCounter interface {
	Count() int
}

type AssistantStatus interface {
	Available() bool
}

// ChatHandler expone el endpoint de WebSocket y el estado del chat.
type ChatHandler struct {
	instanceID string
	ws         http.Handler
	sessions   ConnectionCounter
	assistant  AssistantStatus
}

func NewChatHandler(instanceID string, ws http.Handler, sessions ConnectionCounter, assistant AssistantStatus) *ChatHandler {
	return &ChatHandler{
		instanceID: instanceID,
		ws:         ws,
		sessions:   sessions,
		assistant:  assistant,
	}
}

// WebSocket maneja GET /ws.
func (h *ChatHandler) WebSocket(c *gin.Context) {
	if h.ws == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat not configured"})
		return
	}
	h.ws.ServeHTTP(c.Writer, c.Request)
}

// Health maneja GET /healthz.
func (h *ChatHandler) Health(c *gin.Context) {
	connections := 0
	if h.sessions != nil {
		connections = h.sessions.Count()
	}
	assistant := h.assistant != nil && h.assistant.Available()
	c.JSON(http.StatusOK, gin.H{
		"status":              "ok",
		"instance_id":         h.instanceID,
		"connections":         connections,
		"assistant_available": assistant,
	})
}
