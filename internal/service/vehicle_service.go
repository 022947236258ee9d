package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/storage"
	"backend/pkg/apperror"
	"backend/pkg/pagination"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateVehicleInput is the payload for registering a vehicle.
type CreateVehicleInput struct {
	Matricula           string     `json:"matricula" binding:"required"`
	Alias               string     `json:"alias" binding:"required"`
	KilometrosActuales  int        `json:"kilometros_actuales" binding:"min=0"`
	FechaUltimaRevision *time.Time `json:"fecha_ultima_revision"`
	FechaUltimoServicio *time.Time `json:"fecha_ultimo_servicio"`
}

// UpdateVehicleInput carries partial changes; nil fields stay untouched.
type UpdateVehicleInput struct {
	Alias               *string    `json:"alias"`
	KilometrosActuales  *int       `json:"kilometros_actuales"`
	FechaUltimaRevision *time.Time `json:"fecha_ultima_revision"`
	FechaUltimoServicio *time.Time `json:"fecha_ultimo_servicio"`
}

// UploadImageInput is a decoded multipart upload.
type UploadImageInput struct {
	Tipo      string
	TrabajoID *uint
	Data      []byte
	Extension string
}

// VehicleService implements fleet management. The odometer is monotonic:
// updates below the current reading are rejected.
type VehicleService interface {
	Create(ctx context.Context, in CreateVehicleInput) (*model.Vehicle, error)
	Get(ctx context.Context, id uint) (*model.Vehicle, error)
	List(ctx context.Context, search string, page, limit int) ([]model.Vehicle, *pagination.Meta, error)
	Update(ctx context.Context, id uint, in UpdateVehicleInput) (*model.Vehicle, error)
	Delete(ctx context.Context, id uint) error
	UploadImage(ctx context.Context, vehicleID, uploadedBy uint, in UploadImageInput) (*model.VehicleImage, error)
	ListImages(ctx context.Context, vehicleID uint, trabajoID *uint) ([]model.VehicleImage, error)
}

type vehicleService struct {
	vehicles repository.VehicleRepository
	images   repository.ImageRepository
	store    storage.FileStore
	log      *zap.Logger
}

// NewVehicleService wires the vehicle service.
func NewVehicleService(
	vehicles repository.VehicleRepository,
	images repository.ImageRepository,
	store storage.FileStore,
	log *zap.Logger,
) VehicleService {
	return &vehicleService{vehicles: vehicles, images: images, store: store, log: log}
}

func (s *vehicleService) Create(ctx context.Context, in CreateVehicleInput) (*model.Vehicle, error) {
	matricula := strings.ToUpper(strings.TrimSpace(in.Matricula))
	if matricula == "" {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "matricula",
			Message: "La matrícula es obligatoria",
		})
	}

	exists, err := s.vehicles.ExistsByMatricula(ctx, matricula)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Conflict("Ya existe un vehículo con esa matrícula")
	}

	vehicle := model.Vehicle{
		Matricula:           matricula,
		Alias:               in.Alias,
		KilometrosActuales:  in.KilometrosActuales,
		FechaUltimaRevision: in.FechaUltimaRevision,
		FechaUltimoServicio: in.FechaUltimoServicio,
	}
	if err := s.vehicles.Create(ctx, &vehicle); err != nil {
		return nil, err
	}
	s.log.Info("vehicle created",
		zap.Uint("vehicle_id", vehicle.ID),
		zap.String("matricula", vehicle.Matricula),
	)
	return &vehicle, nil
}

func (s *vehicleService) Get(ctx context.Context, id uint) (*model.Vehicle, error) {
	vehicle, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Vehículo")
		}
		return nil, err
	}
	return vehicle, nil
}

func (s *vehicleService) List(ctx context.Context, search string, page, limit int) ([]model.Vehicle, *pagination.Meta, error) {
	vehicles, total, err := s.vehicles.List(ctx, search, (page-1)*limit, limit)
	if err != nil {
		return nil, nil, err
	}
	return vehicles, pagination.NewMeta(total, page, limit), nil
}

func (s *vehicleService) Update(ctx context.Context, id uint, in UpdateVehicleInput) (*model.Vehicle, error) {
	vehicle, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.KilometrosActuales != nil && *in.KilometrosActuales < vehicle.KilometrosActuales {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "kilometros_actuales",
			Message: "Los kilómetros no pueden ser inferiores a la lectura actual",
		})
	}

	fields := map[string]interface{}{}
	if in.Alias != nil {
		fields["alias"] = *in.Alias
	}
	if in.FechaUltimaRevision != nil {
		fields["fecha_ultima_revision"] = *in.FechaUltimaRevision
	}
	if in.FechaUltimoServicio != nil {
		fields["fecha_ultimo_servicio"] = *in.FechaUltimoServicio
	}
	if len(fields) > 0 {
		if err := s.vehicles.UpdateFields(ctx, id, fields); err != nil {
			return nil, err
		}
	}
	// The odometer goes through the guarded ratchet update, never a plain SET.
	if in.KilometrosActuales != nil {
		if err := s.vehicles.RatchetOdometer(ctx, id, *in.KilometrosActuales, false); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a vehicle unless it is still assigned to an open
// trabajo.
func (s *vehicleService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	open, err := s.vehicles.HasOpenTrabajos(ctx, id)
	if err != nil {
		return err
	}
	if open {
		return apperror.Conflict("El vehículo está asignado a trabajos programados o activos")
	}
	return s.vehicles.SoftDelete(ctx, id)
}

// UploadImage stores a gallery photo for the vehicle. Evidence uploads tied
// to a trabajo go through TrabajoService.UploadEvidencia instead, which
// enforces the per-job overwrite rule.
func (s *vehicleService) UploadImage(ctx context.Context, vehicleID, uploadedBy uint, in UploadImageInput) (*model.VehicleImage, error) {
	if !model.ValidImagenTipo(in.Tipo) {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "tipo_imagen",
			Message: "Tipo de imagen inválido: " + in.Tipo,
		})
	}
	if _, err := s.Get(ctx, vehicleID); err != nil {
		return nil, err
	}

	stored, err := s.store.Save(in.Data, in.Extension)
	if err != nil {
		return nil, err
	}
	image := model.VehicleImage{
		VehicleID:  vehicleID,
		TipoImagen: in.Tipo,
		ImageURL:   stored.URL,
		TrabajoID:  in.TrabajoID,
		UploadedBy: uploadedBy,
	}
	if err := s.images.Create(ctx, &image); err != nil {
		return nil, err
	}
	return &image, nil
}

func (s *vehicleService) ListImages(ctx context.Context, vehicleID uint, trabajoID *uint) ([]model.VehicleImage, error) {
	if _, err := s.Get(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.images.ListByVehicle(ctx, vehicleID, trabajoID)
}
