package domain

import "time"

// ExportRecord is one place in the portable export document.
//
// Field order is the JSON key order, kept strictly alphabetical so two
// exports of the same data are byte-identical and diffable. Timestamps are
// RFC 3339 strings; nil pointers serialize as null.
type ExportRecord struct {
	Address            *string `json:"address"`
	Category           string  `json:"category"`
	CreatedAt          *string `json:"createdAt"`
	ID                 string  `json:"id"`
	IsVisited          bool    `json:"isVisited"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Name               string  `json:"name"`
	PersonalReflection *string `json:"personalReflection"`
	PlaceDescription   *string `json:"placeDescription"`
	Rating             int     `json:"rating"`
	UpdatedAt          *string `json:"updatedAt"`
	VisitedDate        *string `json:"visitedDate"`
}

// ExportTimeFormat is the interchange format for every timestamp in the
// export document.
const ExportTimeFormat = time.RFC3339

// ImportSummary reports the outcome of a bulk import. A record that fails
// validation is skipped and counted in Failed; the import as a whole still
// succeeds as long as the well-formed records were applied.
type ImportSummary struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}
