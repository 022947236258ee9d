package model

import (
	"time"

	"gorm.io/gorm"
)

// Required evidence categories. A job cannot be finalized until every
// assigned vehicle has one current image of each category.
const (
	ImagenFrontal          = "frontal"
	ImagenLateralDerecho   = "lateral_derecho"
	ImagenTrasera          = "trasera"
	ImagenLateralIzquierdo = "lateral_izquierdo"
	ImagenLiquidos         = "liquidos"
)

// ImagenTiposRequeridos lists the five mandatory categories in upload order.
var ImagenTiposRequeridos = []string{
	ImagenFrontal,
	ImagenLateralDerecho,
	ImagenTrasera,
	ImagenLateralIzquierdo,
	ImagenLiquidos,
}

// ValidImagenTipo reports whether tipo is one of the recognized categories.
func ValidImagenTipo(tipo string) bool {
	for _, t := range ImagenTiposRequeridos {
		if t == tipo {
			return true
		}
	}
	return false
}

// Vehicle is a physical asset. KilometrosActuales is monotonic: every write
// goes through the compare-and-ratchet update and never decreases.
type Vehicle struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Matricula           string         `gorm:"type:varchar(20);uniqueIndex;not null" json:"matricula"`
	Alias               string         `gorm:"type:varchar(100);not null" json:"alias"`
	KilometrosActuales  int            `gorm:"not null;default:0" json:"kilometros_actuales"`
	FechaUltimaRevision *time.Time     `gorm:"type:date" json:"fecha_ultima_revision"`
	FechaUltimoServicio *time.Time     `gorm:"type:date" json:"fecha_ultimo_servicio"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// VehicleImage is a stored photo. When TrabajoID is set the row is evidence
// for that job and at most one current image exists per
// (vehicle, trabajo, tipo): repeat uploads overwrite in place.
type VehicleImage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	VehicleID  uint      `gorm:"not null;index" json:"vehicle_id"`
	TipoImagen string    `gorm:"type:varchar(30);not null" json:"tipo_imagen"`
	ImageURL   string    `gorm:"type:varchar(500);not null" json:"image_url"`
	TrabajoID  *uint     `gorm:"index" json:"trabajo_id"`
	UploadedBy uint      `gorm:"not null" json:"uploaded_by"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
