package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/audit"
	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

type fakeRepo struct {
	approval *domain.ApprovalRequest
	decided  bool
}

func (r *fakeRepo) GetApprovalByID(context.Context, string) (*domain.ApprovalRequest, error) {
	return r.approval, nil
}

func (r *fakeRepo) FindApprovals(context.Context, domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	return nil, nil
}

func (r *fakeRepo) DecideApproval(context.Context, string, domain.ApprovalStatus, string, string) (string, error) {
	r.decided = true
	return "task-1", nil
}

func (r *fakeRepo) GetGlobalStats(context.Context) (*domain.GlobalStats, error) { return nil, nil }

func (r *fakeRepo) ListActions(context.Context, string, string, int) ([]audit.ActionEvent, error) {
	return nil, nil
}

func (r *fakeRepo) ListMessages(context.Context, string, int) ([]*domain.ProactiveMessage, error) {
	return nil, nil
}

// Повторная резолюция отклоняется конечным автоматом еще до UPDATE
// и до публикации сигнала пробуждения.
func TestDecideApprovalRejectsResolvedRequest(t *testing.T) {
	repo := &fakeRepo{approval: &domain.ApprovalRequest{
		ID:     "appr-1",
		Status: domain.ApprovalDenied,
	}}
	svc := NewConsoleService(nil, repo, nil, zap.NewNop())

	err := svc.DecideApproval(context.Background(), "appr-1", true, "op-1", "")

	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
	assert.False(t, repo.decided, "state machine must short-circuit before the conditional update")
}
