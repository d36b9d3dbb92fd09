package campaign

import (
	"verdant-vault/vault-portal-backend/pkg/workflows"
)

// NewStateMachine returns the campaign lifecycle state machine. All
// transitions are performed by the ledger; the client only observes them.
// Completed, Failed and Canceled are absorbing.
func NewStateMachine() *workflows.StateMachine {
	return workflows.NewStateMachine(map[string][]string{
		StatusActive.String():    {StatusFunded.String(), StatusFailed.String(), StatusCanceled.String()},
		StatusFunded.String():    {StatusCompleted.String()},
		StatusCompleted.String(): {},
		StatusFailed.String():    {},
		StatusCanceled.String():  {},
	})
}
