package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
)

// ImageRepository defines data access for vehicle images, both the generic
// vehicle gallery and the per-trabajo evidence rows.
type ImageRepository interface {
	Create(ctx context.Context, image *model.VehicleImage) error
	Update(ctx context.Context, image *model.VehicleImage) error
	GetEvidencia(ctx context.Context, vehicleID, trabajoID uint, tipo string) (*model.VehicleImage, error)
	ListTiposSubidos(ctx context.Context, vehicleID, trabajoID uint) ([]string, error)
	ListByVehicle(ctx context.Context, vehicleID uint, trabajoID *uint) ([]model.VehicleImage, error)
	ListByTrabajo(ctx context.Context, trabajoID uint) ([]model.VehicleImage, error)
}

type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository returns the gorm-backed ImageRepository.
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(ctx context.Context, image *model.VehicleImage) error {
	return GetDB(ctx, r.db).Create(image).Error
}

func (r *imageRepository) Update(ctx context.Context, image *model.VehicleImage) error {
	return GetDB(ctx, r.db).Save(image).Error
}

// GetEvidencia returns the current image for one (vehicle, trabajo, tipo)
// triple, or gorm.ErrRecordNotFound.
func (r *imageRepository) GetEvidencia(ctx context.Context, vehicleID, trabajoID uint, tipo string) (*model.VehicleImage, error) {
	var image model.VehicleImage
	err := GetDB(ctx, r.db).
		First(&image, "vehicle_id = ? AND trabajo_id = ? AND tipo_imagen = ?", vehicleID, trabajoID, tipo).Error
	if err != nil {
		return nil, err
	}
	return &image, nil
}

// ListTiposSubidos returns the distinct uploaded categories for one
// (vehicle, trabajo) pair; the evidence gate diffs this against the five
// required categories.
func (r *imageRepository) ListTiposSubidos(ctx context.Context, vehicleID, trabajoID uint) ([]string, error) {
	var tipos []string
	err := GetDB(ctx, r.db).Model(&model.VehicleImage{}).
		Where("vehicle_id = ? AND trabajo_id = ?", vehicleID, trabajoID).
		Distinct().
		Pluck("tipo_imagen", &tipos).Error
	return tipos, err
}

func (r *imageRepository) ListByVehicle(ctx context.Context, vehicleID uint, trabajoID *uint) ([]model.VehicleImage, error) {
	q := GetDB(ctx, r.db).Where("vehicle_id = ?", vehicleID)
	if trabajoID != nil {
		q = q.Where("trabajo_id = ?", *trabajoID)
	}
	var images []model.VehicleImage
	err := q.Order("created_at DESC").Find(&images).Error
	return images, err
}

func (r *imageRepository) ListByTrabajo(ctx context.Context, trabajoID uint) ([]model.VehicleImage, error) {
	var images []model.VehicleImage
	err := GetDB(ctx, r.db).
		Where("trabajo_id = ?", trabajoID).
		Order("created_at ASC").
		Find(&images).Error
	return images, err
}
