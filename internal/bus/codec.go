package bus

import (
	"encoding/json"
	"errors"

	"llm-chat/internal/domain"
)

// envelope es lo que viaja por el transporte compartido.
type envelope struct {
	Origin string           `json:"origin"`
	Event  domain.ChatEvent `json:"event"`
}

var errEmptyEvent = errors.New("envelope without event")

func encodeEnvelope(env envelope) ([]byte, error) {
	return json.Marshal(env)
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, err
	}
	if env.Event.User == "" && env.Event.Message == "" {
		return envelope{}, errEmptyEvent
	}
	return env, nil
}
