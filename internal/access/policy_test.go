package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xamero/smartdocs/internal/models"
)

func userIn(office uuid.UUID) *models.User {
	return &models.User{ID: uuid.New(), Role: models.RoleUser, OfficeID: &office, IsActive: true}
}

func TestPolicyMatrix(t *testing.T) {
	creator := uuid.New()
	holder := uuid.New()
	inbound := uuid.New()
	stranger := uuid.New()

	facts := Facts{
		Document:         &models.Document{ID: uuid.New(), CurrentOfficeID: holder},
		CreatorOfficeID:  &creator,
		InboundOfficeIDs: []uuid.UUID{inbound},
	}

	tests := []struct {
		name       string
		user       *models.User
		capability Capability
		want       bool
	}{
		{"holder views", userIn(holder), View, true},
		{"creator views", userIn(creator), View, true},
		{"inbound views", userIn(inbound), View, true},
		{"stranger cannot view", userIn(stranger), View, false},
		{"inbound takes action", userIn(inbound), TakeAction, true},
		{"holder routes", userIn(holder), Route, true},
		{"creator updates", userIn(creator), Update, true},
		{"inbound cannot route", userIn(inbound), Route, false},
		{"creator archives", userIn(creator), Archive, true},
		{"holder cannot archive", userIn(holder), Archive, false},
		{"holder cannot edit", userIn(holder), Edit, false},
		{"creator cannot delete", userIn(creator), Delete, false},
		{"creator cannot force delete", userIn(creator), ForceDelete, false},
		{"inbound restores deleted", userIn(inbound), RestoreDelete, true},
		{"admin deletes", &models.User{Role: models.RoleAdmin}, Delete, true},
		{"admin without office archives", &models.User{Role: models.RoleAdmin}, Archive, true},
		{"no office denied", &models.User{Role: models.RoleUser}, View, false},
		{"unknown capability", userIn(holder), Capability("merge"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Allowed(tt.user, tt.capability, facts))
		})
	}
}

func TestAuthorize(t *testing.T) {
	holder := uuid.New()
	facts := Facts{Document: &models.Document{ID: uuid.New(), CurrentOfficeID: holder}}

	require.NoError(t, Authorize(userIn(holder), Route, facts))

	err := Authorize(userIn(uuid.New()), Route, facts)
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrForbidden))
}
