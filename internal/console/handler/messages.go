package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// MessageService — лента проактивных сообщений триггер-движка.
type MessageService interface {
	ListMessages(ctx context.Context, orgID string) ([]*domain.ProactiveMessage, error)
}

type MessageHandler struct {
	service MessageService
}

func NewMessageHandler(s MessageService) *MessageHandler {
	return &MessageHandler{service: s}
}

// List — GET /v1/messages?org=...
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.ListMessages(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		http.Error(w, "Failed to fetch messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
