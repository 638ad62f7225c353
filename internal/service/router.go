package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

const DefaultAssistantTrigger = "@llm"

// Publisher es la parte del bus que necesita el router.
type Publisher interface {
	Publish(channel string, event domain.ChatEvent)
}

// InboundMessage es un mensaje recibido de una conexion. Identity es nil si
// la conexion es anonima.
type InboundMessage struct {
	ConnectionID string
	Identity     *domain.Identity
	Body         string
}

// MessageRouter clasifica cada mensaje entrante y publica el ChatEvent
// resultante. No guarda estado entre mensajes.
type MessageRouter struct {
	logger    *zap.Logger
	publisher Publisher
	assistant *Assistant
	limiter   RateLimiter
	channel   string
	trigger   string

	wg sync.WaitGroup
}

// NewMessageRouter crea el router. limiter puede ser nil (sin limite).
func NewMessageRouter(logger *zap.Logger, publisher Publisher, assistant *Assistant, limiter RateLimiter, channel, trigger string) *MessageRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		trigger = DefaultAssistantTrigger
	}
	return &MessageRouter{
		logger:    logger,
		publisher: publisher,
		assistant: assistant,
		limiter:   limiter,
		channel:   channel,
		trigger:   trigger,
	}
}

// Classify devuelve la clase del mensaje y el texto a usar (el cuerpo recortado
// o, para el asistente, el prompt sin el trigger). ok=false si el cuerpo esta vacio.
func (r *MessageRouter) Classify(body string) (class domain.EventClass, text string, ok bool) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", "", false
	}
	if len(trimmed) >= len(r.trigger) && strings.EqualFold(trimmed[:len(r.trigger)], r.trigger) {
		return domain.EventClassAssistant, strings.TrimSpace(trimmed[len(r.trigger):]), true
	}
	return domain.EventClassOrdinary, trimmed, true
}

// Dispatch procesa los mensajes ordinarios en linea y lanza los del asistente
// en su propia goroutine, asi una llamada lenta al LLM no frena el resto del chat.
func (r *MessageRouter) Dispatch(ctx context.Context, msg InboundMessage) {
	class, _, ok := r.Classify(msg.Body)
	if !ok || class != domain.EventClassAssistant {
		r.Route(ctx, msg)
		return
	}

	// La respuesta se difunde aunque quien pregunto ya se haya desconectado.
	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Route(detached, msg)
	}()
}

// Wait espera a que terminen las respuestas del asistente en curso.
func (r *MessageRouter) Wait() {
	r.wg.Wait()
}

// Route procesa el mensaje de forma sincronica y devuelve el evento publicado.
func (r *MessageRouter) Route(ctx context.Context, msg InboundMessage) (domain.ChatEvent, bool) {
	class, text, ok := r.Classify(msg.Body)
	if !ok {
		r.logger.Debug("empty message dropped", zap.String("connection_id", msg.ConnectionID))
		return domain.ChatEvent{}, false
	}

	if class == domain.EventClassAssistant {
		return r.routeAssistant(ctx, msg, text)
	}
	return r.routeOrdinary(msg, text)
}

func (r *MessageRouter) routeOrdinary(msg InboundMessage, body string) (domain.ChatEvent, bool) {
	if msg.Identity == nil {
		r.logger.Debug("unauthenticated message dropped", zap.String("connection_id", msg.ConnectionID))
		return domain.ChatEvent{}, false
	}
	event := domain.ChatEvent{
		User:         msg.Identity.DisplayName,
		Message:      body,
		ProfileImage: msg.Identity.ProfileImage,
		Class:        domain.EventClassOrdinary,
	}
	r.publish(event)
	return event, true
}

func (r *MessageRouter) routeAssistant(ctx context.Context, msg InboundMessage, prompt string) (domain.ChatEvent, bool) {
	if !r.assistant.Available() {
		return r.publishAssistant(AssistantUnavailableText), true
	}
	// Todo @llm produce exactamente un evento del asistente.
	if prompt == "" {
		r.logger.Debug("empty assistant prompt", zap.String("connection_id", msg.ConnectionID))
		return r.publishAssistant(AssistantFallbackText), true
	}
	if r.limiter != nil && !r.limiter.Allow(ctx, senderKey(msg)) {
		r.logger.Debug("assistant prompt rate limited", zap.String("connection_id", msg.ConnectionID))
		return r.publishAssistant(AssistantFallbackText), true
	}

	reply, ok := r.assistant.Generate(ctx, prompt)
	if !ok {
		reply = AssistantFallbackText
	}
	return r.publishAssistant(reply), true
}

func (r *MessageRouter) publishAssistant(body string) domain.ChatEvent {
	event := domain.ChatEvent{
		User:    domain.AssistantName,
		Message: body,
		Class:   domain.EventClassAssistant,
	}
	r.publish(event)
	return event
}

func (r *MessageRouter) publish(event domain.ChatEvent) {
	if r.publisher == nil {
		r.logger.Warn("router without publisher, event dropped")
		return
	}
	r.publisher.Publish(r.channel, event)
}

func senderKey(msg InboundMessage) string {
	if msg.Identity != nil && msg.Identity.ExternalID != "" {
		return "user:" + msg.Identity.ExternalID
	}
	return "conn:" + msg.ConnectionID
}
