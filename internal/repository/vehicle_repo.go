package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

// VehicleRepository defines data access for vehicles.
type VehicleRepository interface {
	Create(ctx context.Context, vehicle *model.Vehicle) error
	GetByID(ctx context.Context, id uint) (*model.Vehicle, error)
	ExistsByMatricula(ctx context.Context, matricula string) (bool, error)
	List(ctx context.Context, search string, offset, limit int) ([]model.Vehicle, int64, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	SoftDelete(ctx context.Context, id uint) error
	HasOpenTrabajos(ctx context.Context, vehicleID uint) (bool, error)
	RatchetOdometer(ctx context.Context, vehicleID uint, kilometros int, stampServicio bool) error
}

type vehicleRepository struct {
	db *gorm.DB
}

// NewVehicleRepository returns the gorm-backed VehicleRepository.
func NewVehicleRepository(db *gorm.DB) VehicleRepository {
	return &vehicleRepository{db: db}
}

func (r *vehicleRepository) Create(ctx context.Context, vehicle *model.Vehicle) error {
	return GetDB(ctx, r.db).Create(vehicle).Error
}

func (r *vehicleRepository) GetByID(ctx context.Context, id uint) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := GetDB(ctx, r.db).First(&vehicle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (r *vehicleRepository) ExistsByMatricula(ctx context.Context, matricula string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Vehicle{}).
		Where("matricula = ?", matricula).
		Count(&count).Error
	return count > 0, err
}

func (r *vehicleRepository) List(ctx context.Context, search string, offset, limit int) ([]model.Vehicle, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.Vehicle{})
	if search != "" {
		pattern := "%" + search + "%"
		q = q.Where("matricula LIKE ? OR alias LIKE ?", pattern, pattern)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vehicles []model.Vehicle
	if err := q.Order("alias ASC").Offset(offset).Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

func (r *vehicleRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return GetDB(ctx, r.db).Model(&model.Vehicle{}).Where("id = ?", id).Updates(fields).Error
}

func (r *vehicleRepository) SoftDelete(ctx context.Context, id uint) error {
	return GetDB(ctx, r.db).Delete(&model.Vehicle{}, id).Error
}

// HasOpenTrabajos reports whether the vehicle is assigned to any
// programado/activo trabajo; such vehicles cannot be deleted.
func (r *vehicleRepository) HasOpenTrabajos(ctx context.Context, vehicleID uint) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.TrabajoVehiculo{}).
		Joins("JOIN trabajos ON trabajos.id = trabajo_vehiculos.trabajo_id").
		Where("trabajo_vehiculos.vehicle_id = ?", vehicleID).
		Where("trabajos.estado IN ?", []string{model.EstadoProgramado, model.EstadoActivo}).
		Where("trabajos.deleted_at IS NULL").
		Count(&count).Error
	return count > 0, err
}

// RatchetOdometer advances kilometros_actuales only when the supplied value
// is greater (SET x = v WHERE x < v). Concurrent writers therefore converge
// on the maximum value ever supplied. stampServicio additionally sets
// fecha_ultimo_servicio to today inside the same guarded update.
func (r *vehicleRepository) RatchetOdometer(ctx context.Context, vehicleID uint, kilometros int, stampServicio bool) error {
	fields := map[string]interface{}{"kilometros_actuales": kilometros}
	if stampServicio {
		fields["fecha_ultimo_servicio"] = time.Now().Truncate(24 * time.Hour)
	}
	return GetDB(ctx, r.db).Model(&model.Vehicle{}).
		Where("id = ? AND kilometros_actuales < ?", vehicleID, kilometros).
		Updates(fields).Error
}
