package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	ExternalID   string    `json:"external_id"`
	Provider     string    `json:"provider"`
	DisplayName  string    `json:"display_name"`
	ProfileImage string    `json:"profile_image,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity proyecta el usuario persistido al valor inmutable que usa el chat.
func (u User) Identity() Identity {
	return Identity{
		ExternalID:   u.ExternalID,
		DisplayName:  u.DisplayName,
		ProfileImage: u.ProfileImage,
	}
}

// ExternalIDFor arma el id externo con prefijo de proveedor ("google_123") para
// que dos proveedores nunca colisionen.
func ExternalIDFor(provider, subject string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return ""
	}
	return provider + "_" + subject
}
