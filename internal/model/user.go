package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents a staff member. The password is stored only as a bcrypt
// hash and never serialized in responses.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"type:varchar(255);not null" json:"-"`
	Email        *string        `gorm:"type:varchar(255)" json:"email"`
	Nombre       string         `gorm:"type:varchar(100);not null" json:"nombre"`
	Apellidos    string         `gorm:"type:varchar(150);not null" json:"apellidos"`
	DNI          string         `gorm:"column:dni;type:varchar(20);uniqueIndex;not null" json:"dni"`
	Direccion    *string        `gorm:"type:varchar(255)" json:"direccion"`
	Telefono     *string        `gorm:"type:varchar(30)" json:"telefono"`
	Activo       bool           `gorm:"not null;default:true" json:"activo"`
	Roles        []Role         `gorm:"many2many:user_roles" json:"roles"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// RoleNames returns the names of the user's assigned roles.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Nombre)
	}
	return names
}

// RefreshToken is one session-renewal credential. Only the SHA-256 hash of
// the opaque token value is persisted; rotation revokes the row and inserts
// a replacement in the same transaction.
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	User      User       `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	TokenHash string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	Revoked   bool       `gorm:"not null;default:false" json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at"`
	IPAddress string     `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent string     `gorm:"type:varchar(500)" json:"user_agent"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// LoginAttempt is an append-only audit row. The lockout predicate counts
// failed rows per username inside a sliding window; rows are never deleted.
type LoginAttempt struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"type:varchar(100);not null;index" json:"username"`
	IPAddress   string    `gorm:"type:varchar(45)" json:"ip_address"`
	Success     bool      `gorm:"not null" json:"success"`
	UserAgent   string    `gorm:"type:varchar(500)" json:"user_agent"`
	AttemptedAt time.Time `gorm:"autoCreateTime;index" json:"attempted_at"`
}
