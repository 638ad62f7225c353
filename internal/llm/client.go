package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
)

// LLMClient responde un prompt del chat con texto plano.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var ErrEmptyResponse = errors.New("llm empty response")

// DefaultSystemPrompt presenta al asistente dentro de la sala de chat.
const DefaultSystemPrompt = "You are " + domain.AssistantName + ", a participant in a group chat room. " +
	"People mention you with @llm followed by a question. " +
	"Answer in plain text, briefly, in the language of the question. Do not use markdown."

// Una respuesta de chat nunca necesita mas que esto; el resto se descarta.
const maxReplyBody = 1 << 20

// CompletionClient habla con un endpoint /chat/completions compatible con OpenAI.
type CompletionClient struct {
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	http         *http.Client
	logger       *zap.Logger
}

// NewHTTPClient crea el cliente con el prompt de sistema por defecto.
func NewHTTPClient(baseURL, apiKey, model string, logger *zap.Logger) *CompletionClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionClient{
		endpoint:     strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:       apiKey,
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		http:         &http.Client{Timeout: 60 * time.Second},
		logger:       logger.With(zap.String("llm_model", model)),
	}
}

// WithSystemPrompt reemplaza el prompt de sistema. Vacio lo omite.
func (c *CompletionClient) WithSystemPrompt(prompt string) *CompletionClient {
	c.systemPrompt = strings.TrimSpace(prompt)
	return c
}

// Generate envia el prompt del usuario y devuelve la primera respuesta sin
// espacios sobrantes.
func (c *CompletionClient) Generate(ctx context.Context, prompt string) (string, error) {
	req, err := c.newRequest(ctx, c.conversation(prompt))
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return "", fmt.Errorf("llm read reply: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("llm rejected prompt",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return "", fmt.Errorf("llm status %d", resp.StatusCode)
	}
	return decodeReply(body)
}

func (c *CompletionClient) conversation(prompt string) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	return append(messages, chatMessage{Role: "user", Content: prompt})
}

func (c *CompletionClient) newRequest(ctx context.Context, messages []chatMessage) (*http.Request, error) {
	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("llm encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func decodeReply(body []byte) (string, error) {
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("llm decode reply: %w", err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("llm api error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	reply := strings.TrimSpace(cr.Choices[0].Message.Content)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
