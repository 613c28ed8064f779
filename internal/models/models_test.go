package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDocumentKind(t *testing.T) {
	parentID := uuid.New()
	main := &Document{ID: uuid.New()}
	copyNumber := 1
	copyDoc := &Document{ID: uuid.New(), IsCopy: true, ParentDocumentID: &parentID, CopyNumber: &copyNumber}

	require.Equal(t, KindMain, main.Kind())
	require.Equal(t, main.ID, main.MainDocumentID())

	require.Equal(t, KindCopy, copyDoc.Kind())
	require.Equal(t, parentID, copyDoc.MainDocumentID())
	require.Equal(t, "copy", copyDoc.Kind().String())
}

func TestRoutingStatusInFlight(t *testing.T) {
	require.True(t, RoutingPending.InFlight())
	require.True(t, RoutingInTransit.InFlight())
	require.False(t, RoutingReceived.InFlight())
	require.False(t, RoutingReturned.InFlight())
}

func TestUserScope(t *testing.T) {
	officeID := uuid.New()
	user := &User{Role: RoleUser, OfficeID: &officeID}

	require.False(t, user.IsAdmin())
	require.True(t, user.InOffice(officeID))
	require.False(t, user.InOffice(uuid.New()))
	require.False(t, (&User{}).InOffice(officeID))

	var nilUser *User
	require.False(t, nilUser.IsAdmin())
}

func TestWrappedDomainErrorsMatch(t *testing.T) {
	err := errors.Wrapf(ErrInvalidState, "document %s", uuid.New())
	require.True(t, errors.Is(err, ErrInvalidState))
	require.False(t, errors.Is(err, ErrForbidden))
}
