package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clearfield/triage/internal/adapter/ws"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})
		r.Get("/health", h.Health)

		// Turn processing
		r.Post("/turns", h.ProcessTurn)

		// Confirmation protocol
		r.Get("/toolcalls/{id}", h.GetToolCall)
		r.Post("/toolcalls/{id}/resolve", h.ResolveConfirmation)

		// Channel gateway
		r.Post("/webhooks/channel", h.HandleChannelWebhook)

		// Review surface events
		r.Get("/ws", hub.HandleWS)
	})
}
