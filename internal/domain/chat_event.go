package domain

const (
	// ChatEventName es el nombre fijo del evento entregado a los clientes.
	ChatEventName = "chat message"
	AssistantName = "Assistant"
)

type EventClass string

const (
	EventClassOrdinary  EventClass = "ordinary"
	EventClassAssistant EventClass = "assistant"
)

// ChatEvent es la unidad que se difunde a todas las conexiones.
type ChatEvent struct {
	User         string     `json:"user"`
	Message      string     `json:"message"`
	ProfileImage string     `json:"profile_image,omitempty"`
	Class        EventClass `json:"class"`
}

// ChatPayload es la forma que ve el cliente: sin la clasificacion interna.
type ChatPayload struct {
	User         string `json:"user"`
	Message      string `json:"message"`
	ProfileImage string `json:"profile_image,omitempty"`
}

func (e ChatEvent) Payload() ChatPayload {
	return ChatPayload{
		User:         e.User,
		Message:      e.Message,
		ProfileImage: e.ProfileImage,
	}
}
