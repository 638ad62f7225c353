package main

import (
	"fmt"
	"strings"

	"llm-chat/internal/domain"
	"llm-chat/internal/service"
)

type Scenario struct {
	Name  string
	Input string
	// Expect son fragmentos que la respuesta debe contener (sin distinguir mayusculas).
	Expect []string
}

func defaultScenarios(trigger string) []Scenario {
	if strings.TrimSpace(trigger) == "" {
		trigger = service.DefaultAssistantTrigger
	}
	return []Scenario{
		{Name: "arithmetic", Input: trigger + " what is 2+2? answer with the number only", Expect: []string{"4"}},
		{Name: "uppercase trigger", Input: strings.ToUpper(trigger) + "   what is 2+2? answer with the number only", Expect: []string{"4"}},
		{Name: "fenced reply", Input: trigger + " reply with a markdown code block that contains only the number 4", Expect: []string{"4"}},
	}
}

// checkReply devuelve la lista de problemas del evento difundido; vacia si esta bien.
func checkReply(sc Scenario, ev domain.ChatEvent) []string {
	var problems []string
	if ev.User != domain.AssistantName {
		problems = append(problems, fmt.Sprintf("expected user %q, got %q", domain.AssistantName, ev.User))
	}
	if ev.Class != domain.EventClassAssistant {
		problems = append(problems, fmt.Sprintf("expected class %q, got %q", domain.EventClassAssistant, ev.Class))
	}
	switch ev.Message {
	case service.AssistantFallbackText:
		problems = append(problems, "assistant failed, fallback text broadcast")
	case service.AssistantUnavailableText:
		problems = append(problems, "assistant reported unavailable")
	}
	if strings.Contains(ev.Message, "```") {
		problems = append(problems, "reply still contains a markdown fence")
	}
	lower := strings.ToLower(ev.Message)
	for _, want := range sc.Expect {
		if !strings.Contains(lower, strings.ToLower(want)) {
			problems = append(problems, fmt.Sprintf("reply does not mention %q", want))
		}
	}
	return problems
}
