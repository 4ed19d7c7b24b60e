// Package handler — sync.go exposes the sync status signal and the manual
// "force sync now" and "clear all data" actions.
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// CORS middleware already gates browser clients; the upgrade
		// itself accepts any origin.
		return true
	},
}

// GetSyncStatus handles GET /sync/status.
// Returns the latest status snapshot for polling clients.
func (s *Server) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Current())
}

// StreamSyncStatus handles GET /sync/status/ws.
// Upgrades to a WebSocket and pushes every status transition as a JSON
// object, starting with the current snapshot, until the client disconnects.
func (s *Server) StreamSyncStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	updates, cancel := s.status.Subscribe()
	defer cancel()

	// Read pump: discard client frames, detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}
}

// PostSyncNow handles POST /sync/now.
// Forces an immediate push/pull cycle and reports its outcome.
func (s *Server) PostSyncNow(w http.ResponseWriter, r *http.Request) {
	if err := s.syncer.SyncNow(r.Context()); err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

// DeleteAllData handles DELETE /data.
// Wipes every place, trip, and pending change from the local store.
func (s *Server) DeleteAllData(w http.ResponseWriter, r *http.Request) {
	if err := s.resetter.ResetAll(r.Context()); err != nil {
		writeDomainError(w, err, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
