package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Principal is the authenticated caller handed to every order operation.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
	Email  string
}

// IsAdmin reports whether the caller holds the operator role.
func (p Principal) IsAdmin() bool {
	return p.Role == enums.UserRoleAdmin
}

// Owns reports whether the caller is the given user.
func (p Principal) Owns(userID uuid.UUID) bool {
	return p.UserID != uuid.Nil && p.UserID == userID
}

// CanAccess reports whether the caller may read or cancel a resource owned by userID.
func (p Principal) CanAccess(userID uuid.UUID) bool {
	return p.IsAdmin() || p.Owns(userID)
}

// Validate rejects anonymous or role-less principals.
func (p Principal) Validate() error {
	if p.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "principal user id required")
	}
	if !p.Role.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeUnauthorized, "invalid role %q", p.Role)
	}
	return nil
}

// RequireAdmin returns FORBIDDEN unless the caller is an operator.
func (p Principal) RequireAdmin() error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

// System is the principal used by background jobs and webhooks.
func System() Principal {
	return Principal{UserID: SystemUserID, Role: enums.UserRoleAdmin, Email: "system@storefront.local"}
}

// SystemUserID identifies actions taken by the platform itself.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
