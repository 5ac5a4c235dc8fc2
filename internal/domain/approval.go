package domain

import (
	"errors"
	"time"
)

// Статусы State Machine заявки на подтверждение (HITL).
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalDenied   ApprovalStatus = "DENIED"
	ApprovalExpired  ApprovalStatus = "EXPIRED" // Таймаут; трактуется как отказ
)

// ApprovalLevel — уровень подписи, который требует действие.
// Вычисляется таблицей решений в approval.Classifier, не хардкодится по агентам.
type ApprovalLevel string

const (
	LevelNone       ApprovalLevel = "none"
	LevelSupervisor ApprovalLevel = "supervisor"
	LevelExecutive  ApprovalLevel = "executive"
	LevelBoard      ApprovalLevel = "board"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
)

// ApprovalRequest — заявка, блокирующая завершение действия до резолюции.
// Ровно одна резолюция; после нее запись неизменяема (гарантируется
// условным UPDATE ... WHERE status = 'PENDING' в репозитории).
type ApprovalRequest struct {
	ID             string         `json:"id"`
	TaskID         string         `json:"task_id"`
	AgentType      string         `json:"agent_type"`
	OrganizationID string         `json:"organization_id"`
	Level          ApprovalLevel  `json:"level"`
	ActionType     string         `json:"action_type"`
	Payload        string         `json:"payload"` // Что именно агент собирался сделать
	Status         ApprovalStatus `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"` // Нулевое время = без авто-истечения (board)
	UpdatedAt time.Time `json:"updated_at"`
}

// CanTransitionTo проверяет правила конечного автомата.
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != ApprovalPending {
		return ErrAlreadyProcessed
	}
	if next == ApprovalPending {
		return ErrInvalidTransition
	}
	return nil
}

// Granted — true только для явного APPROVED.
// DENIED и EXPIRED для агента неразличимы: «этого делать нельзя».
func (a *ApprovalRequest) Granted() bool {
	return a.Status == ApprovalApproved
}
