package lifecycle

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xamero/smartdocs/internal/models"
)

var allStatuses = []models.DocumentStatus{
	models.StatusDraft,
	models.StatusRegistered,
	models.StatusInTransit,
	models.StatusReceived,
	models.StatusInAction,
	models.StatusCompleted,
	models.StatusArchived,
	models.StatusReturned,
}

func TestRoute(t *testing.T) {
	allowed := map[models.DocumentStatus]bool{
		models.StatusRegistered: true,
		models.StatusReceived:   true,
		models.StatusInAction:   true,
		models.StatusReturned:   true,
		models.StatusCompleted:  true,
	}

	for _, from := range allStatuses {
		to, err := Route(from)
		if allowed[from] {
			require.NoError(t, err, from)
			require.Equal(t, models.StatusInTransit, to)
			continue
		}
		require.Error(t, err, from)
		require.True(t, errors.Is(err, models.ErrInvalidState))
		require.Equal(t, from, to)

		var te *TransitionError
		require.True(t, errors.As(err, &te))
		require.Equal(t, from, te.From)
		require.Equal(t, TriggerRoute, te.Trigger)
	}
}

func TestReceive(t *testing.T) {
	for _, from := range allStatuses {
		to, err := Receive(from)
		if from == models.StatusArchived {
			require.True(t, errors.Is(err, models.ErrInvalidState))
			continue
		}
		require.NoError(t, err)
		require.Equal(t, models.StatusReceived, to)
	}
}

func TestAction(t *testing.T) {
	tests := []struct {
		name    string
		from    models.DocumentStatus
		action  models.ActionType
		want    models.DocumentStatus
		wantErr error
	}{
		{"approve received", models.StatusReceived, models.ActionApprove, models.StatusInAction, nil},
		{"sign in action", models.StatusInAction, models.ActionSign, models.StatusInAction, nil},
		{"comply received", models.StatusReceived, models.ActionComply, models.StatusInAction, nil},
		{"approve in transit", models.StatusInTransit, models.ActionApprove, models.StatusInTransit, models.ErrInvalidState},
		{"approve registered", models.StatusRegistered, models.ActionApprove, models.StatusRegistered, models.ErrInvalidState},
		{"return received", models.StatusReceived, models.ActionReturn, models.StatusReturned, nil},
		{"return in action", models.StatusInAction, models.ActionReturn, models.StatusReturned, nil},
		{"return completed", models.StatusCompleted, models.ActionReturn, models.StatusCompleted, models.ErrInvalidState},
		{"note keeps status", models.StatusInTransit, models.ActionNote, models.StatusInTransit, nil},
		{"forward keeps status", models.StatusCompleted, models.ActionForward, models.StatusCompleted, nil},
		{"note on archived", models.StatusArchived, models.ActionNote, models.StatusArchived, models.ErrInvalidState},
		{"unknown action", models.StatusReceived, models.ActionType("stamp"), models.StatusReceived, models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Action(tt.from, tt.action)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCompleteArchiveRestore(t *testing.T) {
	to, err := Complete(models.StatusInAction)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, to)

	_, err = Complete(models.StatusInTransit)
	require.True(t, errors.Is(err, models.ErrInvalidState))

	for _, from := range allStatuses {
		to, err := Archive(from)
		if from == models.StatusArchived {
			require.True(t, errors.Is(err, models.ErrInvalidState))
			continue
		}
		require.NoError(t, err)
		require.Equal(t, models.StatusArchived, to)
	}

	to, err = Restore(models.StatusArchived)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, to)

	_, err = Restore(models.StatusCompleted)
	require.True(t, errors.Is(err, models.ErrInvalidState))
}

func TestCancel(t *testing.T) {
	to, err := Cancel(models.StatusInTransit, false)
	require.NoError(t, err)
	require.Equal(t, models.StatusRegistered, to)

	to, err = Cancel(models.StatusInTransit, true)
	require.NoError(t, err)
	require.Equal(t, models.StatusReceived, to)

	_, err = Cancel(models.StatusArchived, true)
	require.True(t, errors.Is(err, models.ErrInvalidState))
}
