package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llm-chat/internal/bus"
	"llm-chat/internal/config"
	"llm-chat/internal/db"
	apihttp "llm-chat/internal/http"
	"llm-chat/internal/llm"
	"llm-chat/internal/repository"
	"llm-chat/internal/service"
	"llm-chat/internal/ws"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var userRepo repository.UserRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		userRepo = repository.NewPgUserRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, users are kept in memory")
		userRepo = repository.NewMemoryUserRepository()
	}

	var (
		chatBus          *bus.Bus
		tokenStore       service.RefreshTokenStore
		assistantLimiter service.RateLimiter
		redisClient      *redis.Client
	)
	busOpts := bus.Options{Origin: cfg.InstanceID, Buffer: cfg.BusBuffer}
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			// Con REDIS_ADDR configurado la difusion entre procesos es obligatoria.
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		chatBus = bus.NewRedis(redisClient, logger, busOpts)
		tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		if cfg.AssistantRateLimit > 0 {
			assistantLimiter = service.NewRedisRateLimiter(redisClient, cfg.AssistantRateWindow, cfg.AssistantRateLimit)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, broadcasting within this process only")
		chatBus = bus.NewMemory(bus.NewBackbone(), logger, busOpts)
		if cfg.AssistantRateLimit > 0 {
			assistantLimiter = service.NewMemoryRateLimiter(cfg.AssistantRateWindow, cfg.AssistantRateLimit)
		}
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured, every chat connection will be anonymous")
	}

	var llmClient llm.LLMClient
	if cfg.LLMAPIKey != "" {
		completions := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
		if cfg.AssistantPrompt != "" {
			completions.WithSystemPrompt(cfg.AssistantPrompt)
		}
		llmClient = completions
	} else {
		logger.Warn("LLM_API_KEY not set, assistant disabled")
	}
	assistant := service.NewAssistant(llmClient, cfg.AssistantTimeout, logger)

	userSvc := service.NewUserService(logger, userRepo,
		service.WithOAuthProviders(cfg.OAuthProviders...),
		service.WithDefaultProfileImage(cfg.DefaultProfileImage),
	)
	if cfg.OAuthCollaboratorSecret == "" {
		logger.Warn("OAUTH_COLLABORATOR_SECRET not set, /auth/oauth disabled")
	}
	resolver := service.NewIdentityResolver(jwtSvc, userSvc, logger)
	registry := service.NewSessionRegistry(logger)
	router := service.NewMessageRouter(logger, chatBus, assistant, assistantLimiter, cfg.ChatChannel, cfg.AssistantTrigger)

	hub := ws.NewHub()
	wsHandler := ws.NewHandler(ws.Config{
		Channel:        cfg.ChatChannel,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.WSMaxMessageSize,
		RateBurst:      cfg.WSRateBurst,
		RateInterval:   cfg.WSRateInterval,
	}, hub, registry, chatBus, router, resolver, logger)

	userHandler := apihttp.NewUserHandler(logger, userSvc, jwtSvc, cfg.OAuthCollaboratorSecret)
	chatHandler := apihttp.NewChatHandler(chatBus.Origin(), wsHandler, registry, assistant)
	engine := apihttp.NewRouter(logger, userHandler, chatHandler, jwtSvc)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("instance_id", chatBus.Origin()),
		zap.Bool("assistant_available", assistant.Available()),
	)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown", zap.Error(err))
	}
	router.Wait()
	if err := chatBus.Close(shutdownCtx); err != nil {
		logger.Warn("bus shutdown", zap.Error(err))
	}
}
