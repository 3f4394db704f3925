// Package server wires HTTP handlers into a gorilla/mux router for the
// relay application.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns the application router: health check,
// history API, WebSocket endpoint, and the built-in chat page. When a static
// directory is configured it is served for every remaining path.
func SetupRoutes(hub *Hub) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/history", HistoryHandler(hub)).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub))
	r.HandleFunc("/test", ChatPageHandler).Methods(http.MethodGet)

	if hub.cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(hub.cfg.StaticDir)))
	} else {
		r.HandleFunc("/", ChatPageHandler).Methods(http.MethodGet)
	}

	return r
}
