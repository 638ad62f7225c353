package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"llm-chat/internal/bus"
	"llm-chat/internal/config"
	"llm-chat/internal/domain"
	"llm-chat/internal/llm"
	"llm-chat/internal/service"
)

const (
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

// Recorre los escenarios por el router y el bus en memoria con el LLM
// configurado, y revisa lo que veria un cliente conectado.
func main() {
	_ = godotenv.Load()
	useMock := flag.Bool("mock", false, "usar un cliente LLM simulado en lugar del real")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	var client llm.LLMClient
	switch {
	case *useMock:
		client = &llm.MockClient{Response: "```\n4\n```", Delay: 50 * time.Millisecond}
	case cfg.LLMAPIKey != "":
		client = llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	default:
		log.Fatal("LLM_API_KEY not set (use -mock for a dry run)")
	}

	chatBus := bus.NewMemory(bus.NewBackbone(), logger, bus.Options{Origin: "assistant-check"})
	seen := make(chan domain.ChatEvent, 16)
	sub, err := chatBus.Subscribe(cfg.ChatChannel, func(ev domain.ChatEvent) {
		select {
		case seen <- ev:
		default:
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	defer sub.Unsubscribe()

	assistant := service.NewAssistant(client, cfg.AssistantTimeout, logger)
	router := service.NewMessageRouter(logger, chatBus, assistant, nil, cfg.ChatChannel, cfg.AssistantTrigger)

	ctx := context.Background()
	failures := 0
	for _, sc := range defaultScenarios(cfg.AssistantTrigger) {
		fmt.Printf("%s[%s]%s %s\n", colorCyan, sc.Name, colorReset, sc.Input)

		start := time.Now()
		router.Route(ctx, service.InboundMessage{ConnectionID: "assistant-check", Body: sc.Input})

		var ev domain.ChatEvent
		select {
		case ev = <-seen:
		case <-time.After(cfg.AssistantTimeout + 5*time.Second):
			fmt.Printf("%sFAIL%s no event broadcast\n\n", colorRed, colorReset)
			failures++
			continue
		}
		latency := time.Since(start)

		problems := checkReply(sc, ev)
		if len(problems) == 0 {
			fmt.Printf("%sOK%s (%s) %s: %s\n\n", colorGreen, colorReset, latency.Round(time.Millisecond), ev.User, ev.Message)
			continue
		}
		failures++
		fmt.Printf("%sFAIL%s (%s) %s: %s\n", colorRed, colorReset, latency.Round(time.Millisecond), ev.User, ev.Message)
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		fmt.Println()
	}

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = chatBus.Close(closeCtx)

	if failures > 0 {
		fmt.Printf("%d scenario(s) failed\n", failures)
		os.Exit(1)
	}
	fmt.Println("all scenarios passed")
}
