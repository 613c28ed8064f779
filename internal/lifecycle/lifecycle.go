// Package lifecycle holds the fixed document state machine. It has no
// storage dependencies; callers apply the returned status inside their own
// transaction.
package lifecycle

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xamero/smartdocs/internal/models"
)

// Trigger is an event that may move a document between statuses
type Trigger string

const (
	TriggerRoute    Trigger = "route"
	TriggerReceive  Trigger = "receive"
	TriggerAction   Trigger = "action"
	TriggerComplete Trigger = "complete"
	TriggerArchive  Trigger = "archive"
	TriggerRestore  Trigger = "restore"
	TriggerCancel   Trigger = "cancel"
)

// TransitionError reports a trigger that is not allowed from the current status
type TransitionError struct {
	From    models.DocumentStatus
	Trigger Trigger
	Detail  string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s document in status %q", e.Trigger, e.From)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap lets errors.Is match models.ErrInvalidState
func (e *TransitionError) Unwrap() error {
	return models.ErrInvalidState
}

type statusSet map[models.DocumentStatus]struct{}

func setOf(statuses ...models.DocumentStatus) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

func (s statusSet) has(st models.DocumentStatus) bool {
	_, ok := s[st]
	return ok
}

var (
	routable = setOf(
		models.StatusRegistered,
		models.StatusReceived,
		models.StatusInAction,
		models.StatusReturned,
		models.StatusCompleted,
	)
	actionable  = setOf(models.StatusReceived, models.StatusInAction)
	completable = setOf(models.StatusReceived, models.StatusInAction)
)

func denied(from models.DocumentStatus, trigger Trigger, detail string) error {
	return &TransitionError{From: from, Trigger: trigger, Detail: detail}
}

// CanRoute reports whether a routing may be issued from the given status
func CanRoute(from models.DocumentStatus) bool {
	return routable.has(from)
}

// Route returns the status after a routing is issued
func Route(from models.DocumentStatus) (models.DocumentStatus, error) {
	if !CanRoute(from) {
		return from, denied(from, TriggerRoute, "")
	}
	return models.StatusInTransit, nil
}

// Receive returns the status after receipt is confirmed. Any non-archived
// status is accepted so receipt can re-affirm a drifted status.
func Receive(from models.DocumentStatus) (models.DocumentStatus, error) {
	if from == models.StatusArchived {
		return from, denied(from, TriggerReceive, "")
	}
	return models.StatusReceived, nil
}

// Action returns the status after an office records an action
func Action(from models.DocumentStatus, action models.ActionType) (models.DocumentStatus, error) {
	if from == models.StatusArchived {
		return from, denied(from, TriggerAction, string(action))
	}

	switch action {
	case models.ActionApprove, models.ActionSign, models.ActionComply:
		if !actionable.has(from) {
			return from, denied(from, TriggerAction, string(action))
		}
		return models.StatusInAction, nil
	case models.ActionReturn:
		if !actionable.has(from) {
			return from, denied(from, TriggerAction, string(action))
		}
		return models.StatusReturned, nil
	case models.ActionNote, models.ActionForward:
		return from, nil
	default:
		return from, errors.Wrapf(models.ErrValidation, "unknown action type %q", action)
	}
}

// Complete returns the status after the holding office closes the document
func Complete(from models.DocumentStatus) (models.DocumentStatus, error) {
	if !completable.has(from) {
		return from, denied(from, TriggerComplete, "")
	}
	return models.StatusCompleted, nil
}

// Archive returns the archived status for any non-archived document
func Archive(from models.DocumentStatus) (models.DocumentStatus, error) {
	if from == models.StatusArchived {
		return from, denied(from, TriggerArchive, "already archived")
	}
	return models.StatusArchived, nil
}

// Restore brings an archived document back as completed
func Restore(from models.DocumentStatus) (models.DocumentStatus, error) {
	if from != models.StatusArchived {
		return from, denied(from, TriggerRestore, "not archived")
	}
	return models.StatusCompleted, nil
}

// Cancel returns the status after an in-flight routing is withdrawn. The
// document falls back to received if it was ever received, else registered.
func Cancel(from models.DocumentStatus, hasPriorReceipt bool) (models.DocumentStatus, error) {
	if from == models.StatusArchived {
		return from, denied(from, TriggerCancel, "")
	}
	if hasPriorReceipt {
		return models.StatusReceived, nil
	}
	return models.StatusRegistered, nil
}
