package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mikanlink/pkg/apisession"
	"mikanlink/pkg/mikan"
)

const (
	// inboxLimit caps undelivered messages per session; the oldest go first.
	inboxLimit = 100
	inboxTTL   = 5 * time.Minute
)

// scriptInbox buffers compositor script messages for one polling client.
type scriptInbox struct {
	mu       sync.Mutex
	messages []string
	dropped  int
}

func (b *scriptInbox) push(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) >= inboxLimit {
		b.messages = b.messages[1:]
		b.dropped++
	}
	b.messages = append(b.messages, msg)
}

func (b *scriptInbox) drain() ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs, dropped := b.messages, b.dropped
	b.messages, b.dropped = nil, 0
	return msgs, dropped
}

// ScriptMessagesResponse is one poll of a session's inbox.
type ScriptMessagesResponse struct {
	Messages []string `json:"messages"`
	Dropped  int      `json:"dropped"`
}

// Messenger sends script messages to the compositor.
type Messenger interface {
	SendMessage(ctx context.Context, message string) error
}

// ScriptHandler forwards POSTed script messages on the tick goroutine and
// queues incoming ones for clients polling /api/script/messages.
type ScriptHandler struct {
	runner    Runner
	messenger Messenger
	inboxes   *apisession.Store[scriptInbox]
}

func NewScriptHandler(runner Runner, messenger Messenger) *ScriptHandler {
	return &ScriptHandler{
		runner:    runner,
		messenger: messenger,
		inboxes:   apisession.New(inboxTTL, func() *scriptInbox { return &scriptInbox{} }),
	}
}

// Deliver queues a compositor message for every polling session. Sessions
// only receive messages that arrive after their first poll.
func (h *ScriptHandler) Deliver(_ context.Context, message string) {
	h.inboxes.Range(func(_ string, b *scriptInbox) {
		b.push(message)
	})
}

// HandleMessages drains the inbox named by the session query parameter.
func (h *ScriptHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}

	msgs, dropped := h.inboxes.Get(id).drain()
	if msgs == nil {
		msgs = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ScriptMessagesResponse{Messages: msgs, Dropped: dropped}); err != nil {
		slog.Error("Failed to encode script messages", "error", err)
	}
}

type scriptRequest struct {
	Message string `json:"message"`
}

func (h *ScriptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	var sendErr error
	if err := h.runner.Do(r.Context(), func(ctx context.Context) {
		sendErr = h.messenger.SendMessage(ctx, req.Message)
	}); err != nil {
		http.Error(w, "Scene is not running", http.StatusServiceUnavailable)
		return
	}

	switch {
	case errors.Is(sendErr, mikan.ErrNotConnected):
		http.Error(w, "Compositor not connected", http.StatusServiceUnavailable)
		return
	case sendErr != nil:
		slog.Warn("Script message failed", "error", sendErr)
		http.Error(w, sendErr.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
