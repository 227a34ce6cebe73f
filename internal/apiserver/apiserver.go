// Package apiserver implements the HTTP status/control surface that
// sits alongside the WebSocket signaling endpoint: a liveness check and
// a restart trigger for the supervised emulator, plus a seam for
// serving the browser client bundle.
package apiserver

import (
	"encoding/json"
	"net/http"
)

// StaticFileHandler serves the browser client bundle. Its
// implementation is outside this gateway's scope (spec.md Non-goals);
// a caller that needs one can plug in any http.Handler here.
type StaticFileHandler = http.Handler

// StatusProvider supplies the live data /health reports. The
// orchestrator implements this.
type StatusProvider interface {
	EmulatorRunning() bool
	PeerCount() int
}

// Restarter is the seam the /restart endpoint calls into; the
// orchestrator's supervisor integration implements it.
type Restarter interface {
	RequestRestart()
}

// Server is the HTTP mux for the status/control surface.
type Server struct {
	mux *http.ServeMux
}

// New builds the status/control HTTP handler. staticFiles may be nil,
// in which case requests outside /health and /restart 404.
func New(status StatusProvider, restarter Restarter, staticFiles StaticFileHandler) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":           "ok",
			"emulator_running": status.EmulatorRunning(),
			"peer_count":       status.PeerCount(),
		})
	})

	mux.HandleFunc("/restart", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		restarter.RequestRestart()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "restart_requested"})
	})

	if staticFiles != nil {
		mux.Handle("/", staticFiles)
	}

	return &Server{mux: mux}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
