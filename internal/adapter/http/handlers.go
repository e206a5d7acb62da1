package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clearfield/triage/internal/domain/turn"
	"github.com/clearfield/triage/internal/port/cache"
	"github.com/clearfield/triage/internal/port/database"
	"github.com/clearfield/triage/internal/service"
)

// Handlers carries the dependencies for all HTTP endpoints.
type Handlers struct {
	orch     *service.Orchestrator
	store    database.Store
	dedup    cache.Cache
	dedupTTL time.Duration
}

// NewHandlers creates the HTTP handler set.
func NewHandlers(orch *service.Orchestrator, store database.Store, dedup cache.Cache, dedupTTL time.Duration) *Handlers {
	return &Handlers{orch: orch, store: store, dedup: dedup, dedupTTL: dedupTTL}
}

// ProcessTurn runs one message through the pipeline.
// POST /api/v1/turns
func (h *Handlers) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.TurnRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := h.orch.ProcessTurn(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "turn not processed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resolveRequest struct {
	Approve bool `json:"approve"`
}

// ResolveConfirmation applies a reviewer's approve/reject decision to a
// suspended tool call.
// POST /api/v1/toolcalls/{id}/resolve
func (h *Handlers) ResolveConfirmation(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[resolveRequest](w, r)
	if !ok {
		return
	}

	call, err := h.orch.ResolveConfirmation(r.Context(), id, req.Approve)
	if err != nil {
		writeDomainError(w, err, "tool call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// GetToolCall returns the current state of a tool call, for the review
// surface.
// GET /api/v1/toolcalls/{id}
func (h *Handlers) GetToolCall(w http.ResponseWriter, r *http.Request) {
	call, err := h.store.GetToolCall(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "tool call not found")
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// channelWebhook is the inbound payload from the channel gateway.
type channelWebhook struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Channel        string `json:"channel"`
	Sender         struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"sender"`
}

// HandleChannelWebhook accepts a message delivered by the channel
// gateway. Redeliveries of the same message id within the dedup window
// are acknowledged without reprocessing.
// POST /api/v1/webhooks/channel
func (h *Handlers) HandleChannelWebhook(w http.ResponseWriter, r *http.Request) {
	hook, ok := readJSON[channelWebhook](w, r)
	if !ok {
		return
	}
	if hook.MessageID == "" || strings.TrimSpace(hook.Content) == "" {
		writeError(w, http.StatusBadRequest, "message_id and content are required")
		return
	}

	key := "webhook:" + hook.MessageID
	if _, seen, err := h.dedup.Get(r.Context(), key); err == nil && seen {
		slog.Info("duplicate webhook ignored", "message_id", hook.MessageID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if err := h.dedup.Set(r.Context(), key, []byte{1}, h.dedupTTL); err != nil {
		slog.Warn("webhook dedup marker not stored", "message_id", hook.MessageID, "error", err)
	}

	res, err := h.orch.ProcessTurn(r.Context(), service.TurnRequest{
		Message:    hook.Content,
		SessionID:  hook.ConversationID,
		Channel:    turn.Channel(hook.Channel),
		Sender:     hook.Sender.Email,
		SenderName: hook.Sender.Name,
	})
	if err != nil {
		writeDomainError(w, err, "turn not processed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health reports liveness.
// GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
