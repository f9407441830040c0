package setindex

import (
	"errors"
	"fmt"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
)

var ErrActionNotAllowed = errors.New("action not allowed in current state")

// State of an index with respect to the issuance module.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
)

// Action is a write a user can trigger on the detail view.
type Action string

const (
	ActionInitialize   Action = "initialize"
	ActionApprove      Action = "approve"
	ActionBatchApprove Action = "batch_approve"
	ActionIssue        Action = "issue"
	ActionRedeem       Action = "redeem"
)

// StateOf derives the state from the module initialization flag.
func StateOf(meta *models.SetMetadata) State {
	if meta != nil && meta.IsInitializedModule {
		return StateInitialized
	}
	return StateUninitialized
}

// Actions lists the actions enabled in s.
func (s State) Actions() []Action {
	if s == StateInitialized {
		return []Action{ActionApprove, ActionBatchApprove, ActionIssue, ActionRedeem}
	}
	return []Action{ActionInitialize}
}

// Allows reports whether a is enabled in s.
func (s State) Allows(a Action) bool {
	for _, enabled := range s.Actions() {
		if enabled == a {
			return true
		}
	}
	return false
}

// Check returns ErrActionNotAllowed when a is not enabled in s.
func (s State) Check(a Action) error {
	if !s.Allows(a) {
		return fmt.Errorf("%w: %s while %s", ErrActionNotAllowed, a, s)
	}
	return nil
}
