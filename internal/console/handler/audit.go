package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
)

// AuditService — чтение следа действий агентов.
type AuditService interface {
	FetchAuditLog(ctx context.Context, orgID, agentType string) ([]audit.ActionEvent, error)
}

type AuditHandler struct {
	service AuditService
}

func NewAuditHandler(s AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs — след действий с фильтрацией.
// GET /v1/audit?org=...&agent_type=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org")
	agentType := r.URL.Query().Get("agent_type")

	logs, err := h.service.FetchAuditLog(r.Context(), orgID, agentType)
	if err != nil {
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
