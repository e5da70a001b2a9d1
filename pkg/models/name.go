package models

import (
	"time"

	"github.com/google/uuid"
)

// NameReservation is an exclusive claim on a human-readable name within a
// scope (global or a single tenant). Name keeps the display form; uniqueness
// is decided on a normalized form at the storage-key level.
type NameReservation struct {
	Name       string    `json:"name"`
	Scope      string    `json:"scope"`
	OwnerID    uuid.UUID `json:"owner_id"`
	ReservedAt time.Time `json:"reserved_at"`
}

// NameChangeHistory tracks when an owner changed their name, for the rolling
// monthly change limit. Timestamps outside the window are pruned on write.
type NameChangeHistory struct {
	OwnerID uuid.UUID   `json:"owner_id"`
	Changes []time.Time `json:"changes"`
}
