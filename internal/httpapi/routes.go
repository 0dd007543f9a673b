package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fastbreaklabs/leaguesync/internal/health"
	"github.com/fastbreaklabs/leaguesync/internal/hub"
	"github.com/fastbreaklabs/leaguesync/internal/ws"
)

// SetupRoutes builds the router with the engine injected.
func SetupRoutes(h *hub.Hub, monitor *health.Monitor, wsDeps ws.Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(wsDeps))
	r.Get("/metrics", Metrics(monitor))

	// Admin surface
	r.Get("/rooms/{roomID}", RoomView(h))
	r.Post("/rooms/{roomID}/resync", ForceResync(h))

	return r
}
