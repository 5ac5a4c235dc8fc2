package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// AgentService — управление парком инстансов через воркера.
type AgentService interface {
	ListAgents(ctx context.Context) ([]domain.AgentInstance, error)
	StartAgent(ctx context.Context, orgID, agentType string) error
	StopAgent(ctx context.Context, orgID, agentType string) error
}

type AgentHandler struct {
	service AgentService
}

func NewAgentHandler(s AgentService) *AgentHandler {
	return &AgentHandler{service: s}
}

// List — снэпшот парка инстансов (то, что воркер выложил в Redis).
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	instances, err := h.service.ListAgents(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(instances)
}

// Start — POST /v1/agents/{org}/{agentType}/start
func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.service.StartAgent)
}

// Stop — POST /v1/agents/{org}/{agentType}/stop
func (h *AgentHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.service.StopAgent)
}

func (h *AgentHandler) control(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) error) {
	orgID := chi.URLParam(r, "org")
	agentType := chi.URLParam(r, "agentType")
	if orgID == "" || agentType == "" {
		http.Error(w, "org and agentType are required", http.StatusBadRequest)
		return
	}

	if err := fn(r.Context(), orgID, agentType); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Команда асинхронная: воркер подтвердит исполнение следующим снэпшотом
	w.WriteHeader(http.StatusAccepted)
}
