// Package handler — export.go implements GET /export and POST /import.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkordes/placetrail/internal/domain"
)

// GetExport handles GET /export.
// Returns the full place set as the portable JSON document: one object per
// place, keys in stable sorted order. Use ?visited=true to restrict the
// export to visited places.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	visitedOnly := false
	if v := r.URL.Query().Get("visited"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			requestError(w, "invalid visited parameter")
			return
		}
		visitedOnly = parsed
	}

	records, err := s.export.Export(r.Context(), visitedOnly)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// PostImport handles POST /import.
// The body is an export document; each record becomes a new, unassigned
// place. Records failing validation are skipped and counted in the returned
// summary — a partially bad document still imports its good records.
func (s *Server) PostImport(w http.ResponseWriter, r *http.Request) {
	var records []domain.ExportRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		requestError(w, "invalid import document")
		return
	}

	summary, err := s.export.Import(r.Context(), records)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
