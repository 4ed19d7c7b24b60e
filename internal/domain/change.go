package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind discriminates the record type a change applies to.
type EntityKind string

const (
	KindPlace EntityKind = "place"
	KindTrip  EntityKind = "trip"
)

// ChangeOp is the kind of mutation a change describes.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// Change is a field-level delta for one record: the fields the writing side
// actually touched, keyed by column name, with their new values. It is both
// what the change log records for outbound pushes and what the sync service
// delivers for inbound merges. Fields is nil for OpDelete.
//
// Conflict resolution is per field: applying a Change overwrites exactly the
// keys in Fields and leaves every other field of the record alone.
type Change struct {
	Kind     EntityKind     `json:"kind"`
	EntityID uuid.UUID      `json:"entity_id"`
	Op       ChangeOp       `json:"op"`
	Fields   map[string]any `json:"fields,omitempty"`
	At       time.Time      `json:"at"`
}
