package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApprovalTransitions(t *testing.T) {
	pending := &ApprovalRequest{Status: ApprovalPending}

	// Из PENDING разрешена любая резолюция, кроме возврата в PENDING
	assert.NoError(t, pending.CanTransitionTo(ApprovalApproved))
	assert.NoError(t, pending.CanTransitionTo(ApprovalDenied))
	assert.NoError(t, pending.CanTransitionTo(ApprovalExpired))
	assert.ErrorIs(t, pending.CanTransitionTo(ApprovalPending), ErrInvalidTransition)

	// Резолюция ровно одна: из терминального статуса выхода нет
	for _, terminal := range []ApprovalStatus{ApprovalApproved, ApprovalDenied, ApprovalExpired} {
		resolved := &ApprovalRequest{Status: terminal}
		assert.ErrorIs(t, resolved.CanTransitionTo(ApprovalApproved), ErrAlreadyProcessed)
		assert.ErrorIs(t, resolved.CanTransitionTo(ApprovalDenied), ErrAlreadyProcessed)
	}
}

func TestGrantedOnlyForExplicitApproval(t *testing.T) {
	assert.True(t, (&ApprovalRequest{Status: ApprovalApproved}).Granted())

	// DENIED и EXPIRED для агента неразличимы: действие заблокировано
	assert.False(t, (&ApprovalRequest{Status: ApprovalDenied}).Granted())
	assert.False(t, (&ApprovalRequest{Status: ApprovalExpired}).Granted())
	assert.False(t, (&ApprovalRequest{Status: ApprovalPending}).Granted())
}
