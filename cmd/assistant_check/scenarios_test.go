package main

import (
	"strings"
	"testing"

	"llm-chat/internal/domain"
	"llm-chat/internal/service"
)

func TestCheckReply(t *testing.T) {
	sc := Scenario{Name: "arithmetic", Input: "@llm 2+2", Expect: []string{"Four"}}

	cases := []struct {
		name      string
		event     domain.ChatEvent
		wantCount int
		wantText  string
	}{
		{
			name:  "good reply",
			event: domain.ChatEvent{User: domain.AssistantName, Message: "It is four.", Class: domain.EventClassAssistant},
		},
		{
			name:      "fallback",
			event:     domain.ChatEvent{User: domain.AssistantName, Message: service.AssistantFallbackText, Class: domain.EventClassAssistant},
			wantCount: 2,
			wantText:  "fallback",
		},
		{
			name:      "fence left over",
			event:     domain.ChatEvent{User: domain.AssistantName, Message: "```four```", Class: domain.EventClassAssistant},
			wantCount: 1,
			wantText:  "fence",
		},
		{
			name:      "wrong sender",
			event:     domain.ChatEvent{User: "Alice", Message: "four", Class: domain.EventClassOrdinary},
			wantCount: 2,
			wantText:  "expected user",
		},
	}
	for _, tc := range cases {
		problems := checkReply(sc, tc.event)
		if len(problems) != tc.wantCount {
			t.Fatalf("%s: expected %d problems, got %v", tc.name, tc.wantCount, problems)
		}
		if tc.wantText != "" && !strings.Contains(strings.Join(problems, "\n"), tc.wantText) {
			t.Fatalf("%s: expected a problem mentioning %q, got %v", tc.name, tc.wantText, problems)
		}
	}
}

func TestDefaultScenariosUseTrigger(t *testing.T) {
	for _, sc := range defaultScenarios("!bot") {
		if !strings.HasPrefix(strings.ToLower(sc.Input), "!bot") {
			t.Fatalf("scenario %q does not start with the trigger: %q", sc.Name, sc.Input)
		}
	}
	for _, sc := range defaultScenarios("") {
		if !strings.HasPrefix(strings.ToLower(sc.Input), service.DefaultAssistantTrigger) {
			t.Fatalf("expected default trigger, got %q", sc.Input)
		}
	}
}
