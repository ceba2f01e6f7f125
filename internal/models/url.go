package models

import (
	"time"

	"github.com/google/uuid"
)

// URL represents a shortened URL and its associated metadata.
type URL struct {
	// ID is the surrogate key of the record.
	ID int64
	// UUID is a time-ordered, globally unique identifier for the record.
	UUID uuid.UUID
	// ShortCode is the short code associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// VisitCount tracks the number of times the shortened URL has been visited.
	// It is maintained asynchronously by the counter sync worker.
	VisitCount int64
	// IsActive marks whether the record is enabled.
	IsActive bool
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp indicating when the shortened URL was last updated.
	UpdatedAt time.Time
	// DeletedAt is the soft delete marker. A non-nil value makes the record
	// logically absent from all lookups.
	DeletedAt *time.Time
}

// Deleted reports whether the record has been soft deleted.
func (u *URL) Deleted() bool {
	return u.DeletedAt != nil
}
