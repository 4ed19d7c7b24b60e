// Package domain contains the core data types for the Placetrail sync core.
// This package has no dependencies on other internal packages and is imported
// by every other internal package (repo, service, sync, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Place is a single saved location. It is the unit of synchronization:
// the ID is generated locally at creation time and never reassigned, so
// copies of the same logical place on other devices share the ID and the
// sync layer recognizes them as one record.
//
// TripID is a weak back-reference to at most one Trip. It does not own the
// trip; deleting the trip clears the reference on every member place.
type Place struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    Category  `json:"category"`
	Address     string    `json:"address,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`

	// Visit state. VisitedDate is nil until the place has been visited and
	// Rating must be 0 while IsVisited is false. PersonalReflection is free
	// text that only carries meaning once the place is visited.
	IsVisited          bool       `json:"is_visited"`
	VisitedDate        *time.Time `json:"visited_date,omitempty"`
	Rating             int        `json:"rating"`
	PersonalReflection string     `json:"personal_reflection,omitempty"`

	TripID    *uuid.UUID `json:"trip_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PlaceFilter narrows a place query. Zero value means "everything".
// Re-running the same query restarts it against the current on-disk state.
type PlaceFilter struct {
	// VisitedOnly keeps only places with IsVisited set.
	VisitedOnly bool
	// Category keeps only places of the given category when non-empty.
	Category Category
	// TripID keeps only places assigned to the given trip when non-nil.
	TripID *uuid.UUID
}
