package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trip groups places under a named journey. A trip never owns its places:
// the membership lives on each Place as a TripID back-reference, and the
// set of member places is derived by query, not stored on the trip.
type Trip struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"` // must not precede StartDate when both set
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
