package ws

import (
	"bytes"
	"encoding/json"

	"llm-chat/internal/domain"
)

// inboundFrame es lo que manda el cliente: {"event":"chat message","data":"hola"}.
type inboundFrame struct {
	Event string `json:"event,omitempty"`
	Data  string `json:"data"`
}

type outboundFrame struct {
	Event string             `json:"event"`
	Data  domain.ChatPayload `json:"data"`
}

// parseInbound extrae el texto del mensaje. Los frames que no son JSON valido
// se toman como texto plano. ok=false solo para eventos desconocidos.
func parseInbound(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return string(raw), true
	}
	var frame inboundFrame
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return string(raw), true
	}
	if frame.Event != "" && frame.Event != domain.ChatEventName {
		return "", false
	}
	return frame.Data, true
}

func encodeOutbound(event domain.ChatEvent) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: domain.ChatEventName, Data: event.Payload()})
}
