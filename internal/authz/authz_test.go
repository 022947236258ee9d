package authz

import (
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
)

func ident(roles ...string) Identity {
	return Identity{UserID: 1, Username: "test", Roles: roles}
}

func TestRolePredicates(t *testing.T) {
	admin := ident(model.RolAdministrador)
	gestor := ident(model.RolGestor)
	tecnico := ident(model.RolTecnico)
	mixed := ident(model.RolGestor, model.RolMedico)

	assert.True(t, IsAdmin(admin))
	assert.False(t, IsAdmin(gestor))

	assert.True(t, IsManagement(admin))
	assert.True(t, IsManagement(gestor))
	assert.False(t, IsManagement(tecnico))

	// Management roles override operational ones.
	assert.True(t, IsOperacional(tecnico))
	assert.False(t, IsOperacional(mixed))
	assert.False(t, IsOperacional(admin))
	assert.False(t, IsOperacional(ident()))
}

func TestCanModifyUser(t *testing.T) {
	admin := ident(model.RolAdministrador)
	gestor := ident(model.RolGestor)

	assert.True(t, CanModifyUser(admin, []string{model.RolAdministrador}))
	assert.True(t, CanModifyUser(gestor, []string{model.RolTecnico, model.RolMedico}))
	assert.False(t, CanModifyUser(gestor, []string{model.RolAdministrador}))
	assert.False(t, CanModifyUser(gestor, []string{model.RolTecnico, model.RolAdministrador}))
}

func TestCanGrantRoles(t *testing.T) {
	admin := ident(model.RolAdministrador)
	gestor := ident(model.RolGestor)

	assert.True(t, CanGrantRoles(admin, []string{model.RolAdministrador}))
	assert.True(t, CanGrantRoles(gestor, []string{model.RolTecnico}))
	assert.False(t, CanGrantRoles(gestor, []string{model.RolAdministrador}))
}
