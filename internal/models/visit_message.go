package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidVisitMessage is returned when a queued visit message fails validation.
var ErrInvalidVisitMessage = errors.New("invalid visit message")

// VisitMessage is the wire-level payload published to the visits queue for
// every recorded visit. It lives from enqueue to acknowledgement and is never
// persisted as its own entity.
type VisitMessage struct {
	ShortCode string    `json:"short_code"`
	IP        *string   `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks that the message carries the fields the visit worker
// needs to turn it into a visit record.
func (m *VisitMessage) Validate() error {
	if m.ShortCode == "" {
		return fmt.Errorf("%w: short_code is required", ErrInvalidVisitMessage)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidVisitMessage)
	}
	return nil
}
