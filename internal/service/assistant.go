package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"llm-chat/internal/llm"
)

const (
	AssistantUnavailableText = "The assistant is not available right now."
	AssistantFallbackText    = "Sorry, I couldn't come up with an answer. Please try again later."

	defaultAssistantTimeout = 20 * time.Second
)

// Assistant envuelve al LLM externo. Falla cerrado: nunca devuelve error, solo
// ok=false, y el router decide el texto a mostrar.
type Assistant struct {
	client  llm.LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewAssistant con client nil deja al asistente deshabilitado de forma permanente.
func NewAssistant(client llm.LLMClient, timeout time.Duration, logger *zap.Logger) *Assistant {
	if timeout <= 0 {
		timeout = defaultAssistantTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
}

func (a *Assistant) Available() bool {
	return a != nil && a.client != nil
}

// Generate hace una unica llamada acotada por el timeout. Sin reintentos.
func (a *Assistant) Generate(ctx context.Context, prompt string) (reply string, ok bool) {
	if !a.Available() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("assistant panic recovered", zap.String("panic", fmt.Sprint(r)))
			reply, ok = "", false
		}
	}()

	raw, err := a.client.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warn("assistant generate failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return "", false
	}

	reply = cleanAssistantReply(raw)
	if reply == "" {
		a.logger.Warn("assistant returned empty reply")
		return "", false
	}
	return reply, true
}
