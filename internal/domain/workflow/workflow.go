// Package workflow implements the review state machine for submissions.
// Scores never depend on workflow state.
package workflow

import (
	"errors"
	"fmt"

	"github.com/okian/rankready/internal/domain/model"
)

// Action moves a submission between states.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

var (
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrUnknownAction     = errors.New("unknown workflow action")
)

var transitions = map[model.SubmissionStatus]map[Action]model.SubmissionStatus{ //nolint:gochecknoglobals // fixed state table
	model.StatusDraft: {
		ActionSubmit: model.StatusSubmitted,
	},
	model.StatusSubmitted: {
		ActionApprove: model.StatusApproved,
		ActionReject:  model.StatusRejected,
	},
	model.StatusRejected: {
		ActionSubmit: model.StatusSubmitted,
	},
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionSubmit, ActionApprove, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Transition returns the state reached by applying a to from.
func Transition(from model.SubmissionStatus, a Action) (model.SubmissionStatus, error) {
	next, ok := transitions[from][a]
	if !ok {
		return from, fmt.Errorf("%w: cannot %s a %s submission", ErrInvalidTransition, a, from)
	}
	return next, nil
}

// Allowed lists the actions valid from a state.
func Allowed(from model.SubmissionStatus) []Action {
	out := make([]Action, 0, 2)
	for _, a := range []Action{ActionSubmit, ActionApprove, ActionReject} {
		if _, ok := transitions[from][a]; ok {
			out = append(out, a)
		}
	}
	return out
}
