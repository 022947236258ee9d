package model

import (
	"time"

	"gorm.io/gorm"
)

// Trabajo states. finalizado and finalizado_anticipado are terminal; no
// transition ever leaves them.
const (
	EstadoProgramado           = "programado"
	EstadoActivo               = "activo"
	EstadoFinalizado           = "finalizado"
	EstadoFinalizadoAnticipado = "finalizado_anticipado"
)

// Trabajo types.
const (
	TipoTraslado        = "traslado"
	TipoCoberturaEvento = "cobertura_evento"
	TipoOtro            = "otro"
)

// TrabajoIDPrefix heads every generated identifier: TRB-2025-0007.
const TrabajoIDPrefix = "TRB"

// ValidTipo reports whether tipo is one of the fixed job types.
func ValidTipo(tipo string) bool {
	return tipo == TipoTraslado || tipo == TipoCoberturaEvento || tipo == TipoOtro
}

// EstadoTerminal reports whether estado is one of the two terminal states.
func EstadoTerminal(estado string) bool {
	return estado == EstadoFinalizado || estado == EstadoFinalizadoAnticipado
}

// Trabajo is a scheduled assignment of vehicles and personnel with a
// start/end window and a dedicated terminal finalize transition.
type Trabajo struct {
	ID                           uint              `gorm:"primaryKey" json:"id"`
	Identificador                string            `gorm:"type:varchar(20);uniqueIndex;not null" json:"identificador"`
	Nombre                       string            `gorm:"type:varchar(200);not null" json:"nombre"`
	Tipo                         string            `gorm:"type:varchar(30);not null" json:"tipo"`
	Estado                       string            `gorm:"type:varchar(30);not null;default:programado;index" json:"estado"`
	FechaInicio                  time.Time         `gorm:"not null;index" json:"fecha_inicio"`
	FechaFin                     time.Time         `gorm:"not null;index" json:"fecha_fin"`
	MotivoFinalizacionAnticipada *string           `gorm:"type:text" json:"motivo_finalizacion_anticipada"`
	CreatedBy                    uint              `gorm:"not null" json:"created_by"`
	Creador                      User              `gorm:"foreignKey:CreatedBy" json:"-"`
	Vehiculos                    []TrabajoVehiculo `gorm:"foreignKey:TrabajoID" json:"vehiculos"`
	Usuarios                     []User            `gorm:"many2many:trabajo_usuarios" json:"usuarios"`
	CreatedAt                    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt                    gorm.DeletedAt    `gorm:"index" json:"-"`
}

// TrabajoVehiculo assigns one vehicle to one trabajo, with the responsible
// user and the per-job start/end odometer readings.
type TrabajoVehiculo struct {
	ID                uint    `gorm:"primaryKey" json:"id"`
	TrabajoID         uint    `gorm:"not null;index" json:"trabajo_id"`
	VehicleID         uint    `gorm:"not null;index" json:"vehicle_id"`
	Vehicle           Vehicle `gorm:"foreignKey:VehicleID" json:"vehicle"`
	ResponsableUserID uint    `gorm:"not null" json:"responsable_user_id"`
	Responsable       User    `gorm:"foreignKey:ResponsableUserID" json:"responsable"`
	KilometrosInicio  *int    `json:"kilometros_inicio"`
	KilometrosFin     *int    `json:"kilometros_fin"`
}

// TrabajoUsuario is the personnel join row; the pair is unique.
type TrabajoUsuario struct {
	TrabajoID uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey"`
}

// TrabajoSecuencia is the per-year counter behind identifier allocation.
// The increment runs inside the create transaction so concurrent creates in
// the same year serialize on the row.
type TrabajoSecuencia struct {
	Year         int `gorm:"primaryKey;autoIncrement:false"`
	UltimoNumero int `gorm:"not null;default:0"`
}
