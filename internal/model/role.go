package model

import "time"

// Fixed role vocabulary. Role names are validated against this set at the
// boundary; the rows themselves are seeded at migration time.
const (
	RolAdministrador = "administrador"
	RolGestor        = "gestor"
	RolTecnico       = "tecnico"
	RolEnfermero     = "enfermero"
	RolMedico        = "medico"
)

// AllRoles lists every recognized role name.
var AllRoles = []string{RolAdministrador, RolGestor, RolTecnico, RolEnfermero, RolMedico}

// ValidRole reports whether name belongs to the fixed vocabulary.
func ValidRole(name string) bool {
	for _, r := range AllRoles {
		if r == name {
			return true
		}
	}
	return false
}

// Role is a named capability bucket, many-to-many with User.
type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Nombre      string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"nombre"`
	Descripcion *string   `gorm:"type:text" json:"descripcion"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UserRole is the join row between users and roles. It carries assigned_by
// so role grants stay auditable.
type UserRole struct {
	UserID     uint `gorm:"primaryKey"`
	RoleID     uint `gorm:"primaryKey"`
	AssignedBy uint
}
