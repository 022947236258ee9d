// Package authz is the single place where role names are compared. Every
// higher-level predicate composes HasAnyRole over the fixed vocabulary; no
// other package re-implements role checks.
package authz

import "backend/internal/model"

// Identity is the authenticated caller, attached to the request context by
// the authentication middleware.
type Identity struct {
	UserID   uint
	Username string
	Roles    []string
}

// HasAnyRole reports whether the identity holds at least one of the given
// roles.
func (id Identity) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range id.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the identity holds the administrador role.
func IsAdmin(id Identity) bool {
	return id.HasAnyRole(model.RolAdministrador)
}

// IsGestor reports whether the identity holds the gestor role.
func IsGestor(id Identity) bool {
	return id.HasAnyRole(model.RolGestor)
}

// IsManagement reports whether the identity holds a management role
// (administrador or gestor).
func IsManagement(id Identity) bool {
	return id.HasAnyRole(model.RolAdministrador, model.RolGestor)
}

// IsOperacional reports whether the identity holds only assignment-scoped
// visibility (tecnico, enfermero or medico); management roles override.
func IsOperacional(id Identity) bool {
	return id.HasAnyRole(model.RolTecnico, model.RolEnfermero, model.RolMedico) &&
		!IsManagement(id)
}

// CanModifyUser enforces the privilege-tier ordering: a gestor who is not
// also an administrador may not touch a user holding the administrador role.
func CanModifyUser(caller Identity, targetRoles []string) bool {
	if IsAdmin(caller) {
		return true
	}
	for _, r := range targetRoles {
		if r == model.RolAdministrador {
			return false
		}
	}
	return true
}

// CanGrantRoles enforces that only administrators hand out the
// administrador role.
func CanGrantRoles(caller Identity, roles []string) bool {
	if IsAdmin(caller) {
		return true
	}
	for _, r := range roles {
		if r == model.RolAdministrador {
			return false
		}
	}
	return true
}
