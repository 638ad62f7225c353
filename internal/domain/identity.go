package domain

// Identity es un participante autenticado. El nucleo del chat solo la lee.
type Identity struct {
	ExternalID   string `json:"external_id"`
	DisplayName  string `json:"display_name"`
	ProfileImage string `json:"profile_image,omitempty"`
}
