package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	InstanceID  string `env:"INSTANCE_ID"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Sin LLM_API_KEY el asistente queda deshabilitado para toda la vida del proceso.
	LLMAPIKey           string        `env:"LLM_API_KEY"`
	LLMBaseURL          string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel            string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	AssistantTrigger    string        `env:"ASSISTANT_TRIGGER" envDefault:"@llm"`
	AssistantPrompt     string        `env:"ASSISTANT_SYSTEM_PROMPT"`
	AssistantTimeout    time.Duration `env:"ASSISTANT_TIMEOUT" envDefault:"20s"`
	AssistantRateLimit  int           `env:"ASSISTANT_RATE_LIMIT" envDefault:"0"`
	AssistantRateWindow time.Duration `env:"ASSISTANT_RATE_WINDOW" envDefault:"1m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	ChatChannel   string `env:"CHAT_CHANNEL" envDefault:"chat"`
	BusBuffer     int    `env:"BUS_BUFFER" envDefault:"1024"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	// Secreto compartido con el colaborador OAuth. Sin el, POST /auth/oauth responde 503.
	OAuthCollaboratorSecret string   `env:"OAUTH_COLLABORATOR_SECRET"`
	OAuthProviders          []string `env:"OAUTH_PROVIDERS" envSeparator:"," envDefault:"google,github,kakao"`
	DefaultProfileImage     string   `env:"DEFAULT_PROFILE_IMAGE" envDefault:"default.jpg"`

	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"4096"`
	WSRateBurst      int           `env:"WS_RATE_BURST" envDefault:"5"`
	WSRateInterval   time.Duration `env:"WS_RATE_INTERVAL" envDefault:"1s"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
