// Package access decides which offices may view, route or modify a
// document. Predicates are pure; services gather the Facts.
package access

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xamero/smartdocs/internal/models"
)

// Capability names an operation guarded by the policy
type Capability string

const (
	View          Capability = "view"
	TakeAction    Capability = "take_action"
	Update        Capability = "update"
	Route         Capability = "route"
	Archive       Capability = "archive"
	Edit          Capability = "edit"
	Delete        Capability = "delete"
	ForceDelete   Capability = "force_delete"
	RestoreDelete Capability = "restore_deleted"
)

// Facts is what the policy needs to know about a document
type Facts struct {
	Document *models.Document
	// CreatorOfficeID is the office of the user who created the document, if known
	CreatorOfficeID *uuid.UUID
	// InboundOfficeIDs are the destinations of the document's in-flight routings
	InboundOfficeIDs []uuid.UUID
}

func (f Facts) heldBy(officeID uuid.UUID) bool {
	return f.Document != nil && f.Document.CurrentOfficeID == officeID
}

func (f Facts) createdBy(officeID uuid.UUID) bool {
	return f.CreatorOfficeID != nil && *f.CreatorOfficeID == officeID
}

func (f Facts) inboundTo(officeID uuid.UUID) bool {
	for _, id := range f.InboundOfficeIDs {
		if id == officeID {
			return true
		}
	}
	return false
}

// officeOf returns the user's office, or false when the user has none
func officeOf(user *models.User) (uuid.UUID, bool) {
	if user == nil || user.OfficeID == nil {
		return uuid.Nil, false
	}
	return *user.OfficeID, true
}

// CanView: current office, creator office, or the destination of an in-flight routing
func CanView(user *models.User, f Facts) bool {
	if user.IsAdmin() {
		return true
	}
	office, ok := officeOf(user)
	if !ok {
		return false
	}
	return f.heldBy(office) || f.createdBy(office) || f.inboundTo(office)
}

// CanTakeAction follows the same rule as CanView
func CanTakeAction(user *models.User, f Facts) bool {
	return CanView(user, f)
}

// CanUpdate: current office or creator office
func CanUpdate(user *models.User, f Facts) bool {
	if user.IsAdmin() {
		return true
	}
	office, ok := officeOf(user)
	if !ok {
		return false
	}
	return f.heldBy(office) || f.createdBy(office)
}

// CanRoute follows the same rule as CanUpdate
func CanRoute(user *models.User, f Facts) bool {
	return CanUpdate(user, f)
}

// CanArchive: creator office only
func CanArchive(user *models.User, f Facts) bool {
	if user.IsAdmin() {
		return true
	}
	office, ok := officeOf(user)
	if !ok {
		return false
	}
	return f.createdBy(office)
}

// CanEdit follows the same rule as CanArchive
func CanEdit(user *models.User, f Facts) bool {
	return CanArchive(user, f)
}

// CanDelete is admin only
func CanDelete(user *models.User, _ Facts) bool {
	return user.IsAdmin()
}

// CanForceDelete is admin only
func CanForceDelete(user *models.User, _ Facts) bool {
	return user.IsAdmin()
}

// CanRestoreDeleted lets anyone who could view the document bring it back
func CanRestoreDeleted(user *models.User, f Facts) bool {
	return CanView(user, f)
}

var predicates = map[Capability]func(*models.User, Facts) bool{
	View:          CanView,
	TakeAction:    CanTakeAction,
	Update:        CanUpdate,
	Route:         CanRoute,
	Archive:       CanArchive,
	Edit:          CanEdit,
	Delete:        CanDelete,
	ForceDelete:   CanForceDelete,
	RestoreDelete: CanRestoreDeleted,
}

// Allowed evaluates a capability by name
func Allowed(user *models.User, capability Capability, f Facts) bool {
	check, ok := predicates[capability]
	if !ok {
		return false
	}
	return check(user, f)
}

// Authorize returns models.ErrForbidden when the capability is denied
func Authorize(user *models.User, capability Capability, f Facts) error {
	if Allowed(user, capability, f) {
		return nil
	}
	var docID uuid.UUID
	if f.Document != nil {
		docID = f.Document.ID
	}
	return errors.Wrapf(models.ErrForbidden, "%s not permitted on document %s", capability, docID)
}
