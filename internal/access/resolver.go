// Package access implements the Permission Resolver (spec.md §4.2): given a
// document record and a user id, determine the user's role and derived
// capabilities. The resolver is re-consulted on every edit, not just at join,
// since roles may change mid-session.
package access

import (
	"context"

	"github.com/collabtext/realtime-docs/internal/apperr"
	"github.com/collabtext/realtime-docs/internal/document"
)

// Required is the access level an operation demands of getDocumentWithAccess.
type Required int

const (
	RequireRead Required = iota
	RequireEdit
	RequireOwner
)

// Resolve returns the caller's role on rec.
func Resolve(rec *document.Record, userID string) document.Role {
	if rec.Owner == userID {
		return document.RoleOwner
	}
	if role, ok := rec.Shares[userID]; ok {
		return role
	}
	return document.RoleNone
}

// Capability is the set of derived permissions for a role.
type Capability struct {
	CanRead    bool
	CanEdit    bool
	CanShare   bool
	CanDelete  bool
	CanRestore bool
}

// Capabilities derives the capability set for role exactly per spec.md §4.2.
func Capabilities(role document.Role) Capability {
	canRead := role == document.RoleOwner || role == document.RoleEditor ||
		role == document.RoleCommenter || role == document.RoleViewer
	canEdit := role == document.RoleOwner || role == document.RoleEditor
	owner := role == document.RoleOwner
	return Capability{
		CanRead:    canRead,
		CanEdit:    canEdit,
		CanShare:   owner,
		CanDelete:  owner,
		CanRestore: owner,
	}
}

// Store is the narrow store dependency GetDocumentWithAccess needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*document.Record, error)
}

// GetDocumentWithAccess fetches the document and checks the caller holds at
// least the required access level, per spec.md §4.2.
func GetDocumentWithAccess(ctx context.Context, store Store, documentID, userID string, required Required) (*document.Record, document.Role, error) {
	rec, err := store.GetByID(ctx, documentID)
	if err != nil {
		return nil, document.RoleNone, apperr.Wrap(apperr.KindNotFound, "document not found", err)
	}

	role := Resolve(rec, userID)
	cap := Capabilities(role)

	ok := false
	switch required {
	case RequireRead:
		ok = cap.CanRead
	case RequireEdit:
		ok = cap.CanEdit
	case RequireOwner:
		ok = role == document.RoleOwner
	}
	if !ok {
		return nil, role, apperr.New(apperr.KindForbidden, "insufficient role for requested access")
	}
	return rec, role, nil
}
