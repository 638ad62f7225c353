package domain

import "time"

// Connection representa una sesion de transporte abierta.
type Connection struct {
	ID        string
	Identity  *Identity
	CreatedAt time.Time
}

func (c Connection) Anonymous() bool {
	return c.Identity == nil
}
