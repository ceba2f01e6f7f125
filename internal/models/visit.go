package models

import (
	"time"

	"github.com/google/uuid"
)

// Visit represents one observed visit to a shortened URL. Visits are created
// in bulk by the visit worker and are immutable thereafter.
type Visit struct {
	ID        int64
	UUID      uuid.UUID
	URLID     int64
	IPAddress *string
	// VisitedAt carries the timestamp from the originating event,
	// not from persistence time.
	VisitedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
