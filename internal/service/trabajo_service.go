package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/authz"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/storage"
	"backend/pkg/apperror"
	"backend/pkg/pagination"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TrabajoVehiculoInput assigns one vehicle with its responsible user.
// KilometrosInicio defaults to the vehicle's current reading when omitted.
type TrabajoVehiculoInput struct {
	VehicleID         uint `json:"vehicle_id" binding:"required"`
	ResponsableUserID uint `json:"responsable_user_id" binding:"required"`
	KilometrosInicio  *int `json:"kilometros_inicio"`
}

// CreateTrabajoInput is the payload for scheduling a trabajo.
type CreateTrabajoInput struct {
	Nombre      string                 `json:"nombre" binding:"required"`
	Tipo        string                 `json:"tipo" binding:"required"`
	FechaInicio time.Time              `json:"fecha_inicio" binding:"required"`
	FechaFin    time.Time              `json:"fecha_fin" binding:"required"`
	Vehiculos   []TrabajoVehiculoInput `json:"vehiculos"`
	Usuarios    []uint                 `json:"usuarios"`
}

// UpdateTrabajoInput carries partial changes; nil fields stay untouched.
// Estado only accepts programado or activo: the terminal states are reached
// exclusively through Finalize.
type UpdateTrabajoInput struct {
	Nombre      *string                 `json:"nombre"`
	Tipo        *string                 `json:"tipo"`
	Estado      *string                 `json:"estado"`
	FechaInicio *time.Time              `json:"fecha_inicio"`
	FechaFin    *time.Time              `json:"fecha_fin"`
	Vehiculos   *[]TrabajoVehiculoInput `json:"vehiculos"`
	Usuarios    *[]uint                 `json:"usuarios"`
}

// VehiculoKilometrosInput is one closing odometer reading.
type VehiculoKilometrosInput struct {
	VehicleID     uint `json:"vehicle_id" binding:"required"`
	KilometrosFin int  `json:"kilometros_fin" binding:"min=0"`
}

// FinalizeInput closes a trabajo. Motivo is mandatory when the trabajo ends
// before its scheduled fecha_fin.
type FinalizeInput struct {
	Motivo     *string                   `json:"motivo"`
	Kilometros []VehiculoKilometrosInput `json:"kilometros" binding:"required"`
}

// EvidenciaProgress reports how far one vehicle's evidence set has come.
type EvidenciaProgress struct {
	Completado int      `json:"completado"`
	Total      int      `json:"total"`
	Faltantes  []string `json:"faltantes"`
	Completo   bool     `json:"completo"`
}

// EvidenciaResult is the upload response: the stored image plus progress.
type EvidenciaResult struct {
	Imagen   *model.VehicleImage `json:"imagen"`
	Progreso EvidenciaProgress   `json:"progreso"`
}

// TrabajoService implements the job lifecycle: scheduling, assignment,
// per-job photo evidence and the gated terminal finalize transition.
type TrabajoService interface {
	Create(ctx context.Context, caller authz.Identity, in CreateTrabajoInput) (*model.Trabajo, error)
	Get(ctx context.Context, caller authz.Identity, id uint) (*model.Trabajo, error)
	List(ctx context.Context, caller authz.Identity, filter repository.TrabajoFilter, page, limit int) ([]model.Trabajo, *pagination.Meta, error)
	MisTrabajos(ctx context.Context, caller authz.Identity, filter repository.TrabajoFilter, page, limit int) ([]model.Trabajo, *pagination.Meta, error)
	Calendario(ctx context.Context, caller authz.Identity, desde, hasta time.Time) ([]model.Trabajo, error)
	Update(ctx context.Context, caller authz.Identity, id uint, in UpdateTrabajoInput) (*model.Trabajo, error)
	Delete(ctx context.Context, caller authz.Identity, id uint) error
	Finalize(ctx context.Context, caller authz.Identity, id uint, in FinalizeInput) (*model.Trabajo, error)
	UploadEvidencia(ctx context.Context, caller authz.Identity, trabajoID, vehicleID uint, in UploadImageInput) (*EvidenciaResult, error)
	EvidenciaEstado(ctx context.Context, caller authz.Identity, trabajoID uint) (map[uint]EvidenciaProgress, error)
}

type trabajoService struct {
	trabajos repository.TrabajoRepository
	vehicles repository.VehicleRepository
	users    repository.UserRepository
	images   repository.ImageRepository
	store    storage.FileStore
	txm      repository.TransactionManager
	log      *zap.Logger
}

// NewTrabajoService wires the trabajo service.
func NewTrabajoService(
	trabajos repository.TrabajoRepository,
	vehicles repository.VehicleRepository,
	users repository.UserRepository,
	images repository.ImageRepository,
	store storage.FileStore,
	txm repository.TransactionManager,
	log *zap.Logger,
) TrabajoService {
	return &trabajoService{
		trabajos: trabajos,
		vehicles: vehicles,
		users:    users,
		images:   images,
		store:    store,
		txm:      txm,
		log:      log,
	}
}

func validateTrabajoWindow(inicio, fin time.Time) error {
	if !fin.After(inicio) {
		return apperror.Validation(apperror.FieldError{
			Field:   "fecha_fin",
			Message: "La fecha de fin debe ser posterior a la fecha de inicio",
		})
	}
	return nil
}

// buildAssignments resolves and validates the vehicle assignment inputs,
// filling kilometros_inicio from the vehicle's current reading when omitted.
func (s *trabajoService) buildAssignments(ctx context.Context, inputs []TrabajoVehiculoInput) ([]model.TrabajoVehiculo, error) {
	seen := make(map[uint]bool, len(inputs))
	assignments := make([]model.TrabajoVehiculo, 0, len(inputs))
	for _, in := range inputs {
		if seen[in.VehicleID] {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "vehiculos",
				Message: fmt.Sprintf("El vehículo %d aparece más de una vez", in.VehicleID),
			})
		}
		seen[in.VehicleID] = true

		vehicle, err := s.vehicles.GetByID(ctx, in.VehicleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.NotFound("Vehículo")
			}
			return nil, err
		}
		responsable, err := s.users.GetByID(ctx, in.ResponsableUserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.NotFound("Usuario responsable")
			}
			return nil, err
		}
		if !responsable.Activo {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "vehiculos",
				Message: "El usuario responsable no está activo",
			})
		}

		inicio := vehicle.KilometrosActuales
		if in.KilometrosInicio != nil {
			if *in.KilometrosInicio < vehicle.KilometrosActuales {
				return nil, apperror.Validation(apperror.FieldError{
					Field:   "kilometros_inicio",
					Message: "Los kilómetros de inicio no pueden ser inferiores a la lectura actual del vehículo",
				})
			}
			inicio = *in.KilometrosInicio
		}
		assignments = append(assignments, model.TrabajoVehiculo{
			VehicleID:         in.VehicleID,
			ResponsableUserID: in.ResponsableUserID,
			KilometrosInicio:  &inicio,
		})
	}
	return assignments, nil
}

// personnelSet merges the explicit usuarios list with every responsable, so
// responsables always see their trabajos.
func personnelSet(usuarios []uint, assignments []model.TrabajoVehiculo) []uint {
	seen := make(map[uint]bool)
	var ids []uint
	add := func(id uint) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range usuarios {
		add(id)
	}
	for _, a := range assignments {
		add(a.ResponsableUserID)
	}
	return ids
}

func (s *trabajoService) Create(ctx context.Context, caller authz.Identity, in CreateTrabajoInput) (*model.Trabajo, error) {
	if !model.ValidTipo(in.Tipo) {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "tipo",
			Message: "Tipo de trabajo inválido: " + in.Tipo,
		})
	}
	if err := validateTrabajoWindow(in.FechaInicio, in.FechaFin); err != nil {
		return nil, err
	}
	assignments, err := s.buildAssignments(ctx, in.Vehiculos)
	if err != nil {
		return nil, err
	}

	var trabajo model.Trabajo
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		// The identifier carries the creation year, not the scheduled one.
		identificador, err := s.trabajos.NextIdentificador(txCtx, time.Now().Year())
		if err != nil {
			return err
		}
		trabajo = model.Trabajo{
			Identificador: identificador,
			Nombre:        in.Nombre,
			Tipo:          in.Tipo,
			Estado:        model.EstadoProgramado,
			FechaInicio:   in.FechaInicio,
			FechaFin:      in.FechaFin,
			CreatedBy:     caller.UserID,
		}
		if err := s.trabajos.Create(txCtx, &trabajo); err != nil {
			return err
		}
		if err := s.trabajos.ReplaceVehiculos(txCtx, trabajo.ID, assignments); err != nil {
			return err
		}
		for _, a := range assignments {
			if err := s.vehicles.RatchetOdometer(txCtx, a.VehicleID, *a.KilometrosInicio, false); err != nil {
				return err
			}
		}
		return s.trabajos.AddUsuarios(txCtx, trabajo.ID, personnelSet(in.Usuarios, assignments))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("trabajo created",
		zap.Uint("trabajo_id", trabajo.ID),
		zap.String("identificador", trabajo.Identificador),
		zap.Uint("created_by", caller.UserID),
	)
	return s.trabajos.GetByID(ctx, trabajo.ID)
}

// Get returns a trabajo. Operational callers only see trabajos they are
// assigned to, and a mismatch is a 403, not a 404: the identifier scheme is
// sequential, so hiding existence would be pointless.
func (s *trabajoService) Get(ctx context.Context, caller authz.Identity, id uint) (*model.Trabajo, error) {
	trabajo, err := s.trabajos.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Trabajo")
		}
		return nil, err
	}
	if authz.IsOperacional(caller) && !trabajoHasUser(trabajo, caller.UserID) {
		return nil, apperror.Forbidden("No estás asignado a este trabajo")
	}
	return trabajo, nil
}

func trabajoHasUser(trabajo *model.Trabajo, userID uint) bool {
	for _, u := range trabajo.Usuarios {
		if u.ID == userID {
			return true
		}
	}
	for _, v := range trabajo.Vehiculos {
		if v.ResponsableUserID == userID {
			return true
		}
	}
	return false
}

func (s *trabajoService) List(ctx context.Context, caller authz.Identity, filter repository.TrabajoFilter, page, limit int) ([]model.Trabajo, *pagination.Meta, error) {
	if authz.IsOperacional(caller) {
		filter.AssignedUserID = caller.UserID
	}
	trabajos, total, err := s.trabajos.List(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, nil, err
	}
	return trabajos, pagination.NewMeta(total, page, limit), nil
}

func (s *trabajoService) MisTrabajos(ctx context.Context, caller authz.Identity, filter repository.TrabajoFilter, page, limit int) ([]model.Trabajo, *pagination.Meta, error) {
	filter.AssignedUserID = caller.UserID
	trabajos, total, err := s.trabajos.List(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, nil, err
	}
	return trabajos, pagination.NewMeta(total, page, limit), nil
}

func (s *trabajoService) Calendario(ctx context.Context, caller authz.Identity, desde, hasta time.Time) ([]model.Trabajo, error) {
	if !hasta.After(desde) {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "hasta",
			Message: "El rango de fechas es inválido",
		})
	}
	var assignedUserID uint
	if authz.IsOperacional(caller) {
		assignedUserID = caller.UserID
	}
	return s.trabajos.Calendar(ctx, desde, hasta, assignedUserID)
}

func (s *trabajoService) Update(ctx context.Context, caller authz.Identity, id uint, in UpdateTrabajoInput) (*model.Trabajo, error) {
	trabajo, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if model.EstadoTerminal(trabajo.Estado) {
		return nil, apperror.Conflict("Un trabajo finalizado no se puede modificar")
	}

	fields := map[string]interface{}{}
	if in.Nombre != nil {
		fields["nombre"] = *in.Nombre
	}
	if in.Tipo != nil {
		if !model.ValidTipo(*in.Tipo) {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "tipo",
				Message: "Tipo de trabajo inválido: " + *in.Tipo,
			})
		}
		fields["tipo"] = *in.Tipo
	}
	if in.Estado != nil {
		if *in.Estado != model.EstadoProgramado && *in.Estado != model.EstadoActivo {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "estado",
				Message: "El estado solo puede cambiarse a programado o activo; usa el endpoint de finalización",
			})
		}
		fields["estado"] = *in.Estado
	}

	inicio, fin := trabajo.FechaInicio, trabajo.FechaFin
	if in.FechaInicio != nil {
		inicio = *in.FechaInicio
		fields["fecha_inicio"] = inicio
	}
	if in.FechaFin != nil {
		fin = *in.FechaFin
		fields["fecha_fin"] = fin
	}
	if in.FechaInicio != nil || in.FechaFin != nil {
		if err := validateTrabajoWindow(inicio, fin); err != nil {
			return nil, err
		}
	}

	replaceVehiculos := in.Vehiculos != nil
	var assignments []model.TrabajoVehiculo
	if replaceVehiculos {
		assignments, err = s.buildAssignments(ctx, *in.Vehiculos)
		if err != nil {
			return nil, err
		}
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if len(fields) > 0 {
			if err := s.trabajos.UpdateFields(txCtx, id, fields); err != nil {
				return err
			}
		}
		if replaceVehiculos {
			if err := s.trabajos.ReplaceVehiculos(txCtx, id, assignments); err != nil {
				return err
			}
			for _, a := range assignments {
				if err := s.vehicles.RatchetOdometer(txCtx, a.VehicleID, *a.KilometrosInicio, false); err != nil {
					return err
				}
			}
		}
		if in.Usuarios != nil {
			users := personnelSet(*in.Usuarios, assignments)
			if err := s.trabajos.ReplaceUsuarios(txCtx, id, users); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.trabajos.GetByID(ctx, id)
}

// Delete soft-deletes a trabajo. An activo trabajo must be finalized first.
func (s *trabajoService) Delete(ctx context.Context, caller authz.Identity, id uint) error {
	trabajo, err := s.Get(ctx, caller, id)
	if err != nil {
		return err
	}
	if trabajo.Estado == model.EstadoActivo {
		return apperror.Conflict("No se puede eliminar un trabajo activo; finalízalo primero")
	}
	if err := s.trabajos.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.log.Info("trabajo deleted",
		zap.Uint("trabajo_id", id),
		zap.Uint("deleted_by", caller.UserID),
	)
	return nil
}

// evidenciaProgress computes the evidence state for one (vehicle, trabajo)
// pair against the five required categories.
func (s *trabajoService) evidenciaProgress(ctx context.Context, vehicleID, trabajoID uint) (EvidenciaProgress, error) {
	subidos, err := s.images.ListTiposSubidos(ctx, vehicleID, trabajoID)
	if err != nil {
		return EvidenciaProgress{}, err
	}
	have := make(map[string]bool, len(subidos))
	for _, t := range subidos {
		have[t] = true
	}
	faltantes := []string{}
	for _, t := range model.ImagenTiposRequeridos {
		if !have[t] {
			faltantes = append(faltantes, t)
		}
	}
	total := len(model.ImagenTiposRequeridos)
	return EvidenciaProgress{
		Completado: total - len(faltantes),
		Total:      total,
		Faltantes:  faltantes,
		Completo:   len(faltantes) == 0,
	}, nil
}

// Finalize performs the terminal transition. Gates run in order: caller
// authorization, terminal-state check, photo evidence per vehicle, closing
// odometer readings. Before fecha_fin the transition is
// finalizado_anticipado and motivo is mandatory.
func (s *trabajoService) Finalize(ctx context.Context, caller authz.Identity, id uint, in FinalizeInput) (*model.Trabajo, error) {
	trabajo, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if !authz.IsManagement(caller) && !isResponsable(trabajo, caller.UserID) {
		return nil, apperror.Forbidden("Solo el responsable de un vehículo asignado o un gestor puede finalizar el trabajo")
	}
	if model.EstadoTerminal(trabajo.Estado) {
		return nil, apperror.Conflict("El trabajo ya está finalizado")
	}

	estado := model.EstadoFinalizado
	var motivo *string
	if time.Now().Before(trabajo.FechaFin) {
		estado = model.EstadoFinalizadoAnticipado
		if in.Motivo == nil || strings.TrimSpace(*in.Motivo) == "" {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "motivo",
				Message: "El motivo es obligatorio al finalizar antes de la fecha prevista",
			})
		}
		motivo = in.Motivo
	}

	// Evidence gate: every assigned vehicle needs its five categories.
	var evidenceErrs []apperror.FieldError
	for _, v := range trabajo.Vehiculos {
		progress, err := s.evidenciaProgress(ctx, v.VehicleID, trabajo.ID)
		if err != nil {
			return nil, err
		}
		if !progress.Completo {
			for _, tipo := range progress.Faltantes {
				evidenceErrs = append(evidenceErrs, apperror.FieldError{
					Field:   fmt.Sprintf("vehiculos.%d.imagenes", v.VehicleID),
					Message: fmt.Sprintf("Falta la imagen %s del vehículo %s", tipo, v.Vehicle.Matricula),
				})
			}
		}
	}
	if len(evidenceErrs) > 0 {
		return nil, apperror.Validation(evidenceErrs...)
	}

	// Odometer gate: one closing reading per assigned vehicle, never below
	// the opening reading.
	readings := make(map[uint]int, len(in.Kilometros))
	for _, k := range in.Kilometros {
		readings[k.VehicleID] = k.KilometrosFin
	}
	for _, v := range trabajo.Vehiculos {
		fin, ok := readings[v.VehicleID]
		if !ok {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "kilometros",
				Message: fmt.Sprintf("Faltan los kilómetros finales del vehículo %s", v.Vehicle.Matricula),
			})
		}
		if v.KilometrosInicio != nil && fin < *v.KilometrosInicio {
			return nil, apperror.Validation(apperror.FieldError{
				Field:   "kilometros",
				Message: fmt.Sprintf("Los kilómetros finales del vehículo %s no pueden ser inferiores a los iniciales", v.Vehicle.Matricula),
			})
		}
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		ok, err := s.trabajos.MarkFinalizado(txCtx, trabajo.ID, estado, motivo)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Conflict("El trabajo ya está finalizado")
		}
		for _, v := range trabajo.Vehiculos {
			fin := readings[v.VehicleID]
			if err := s.trabajos.SetKilometrosFin(txCtx, trabajo.ID, v.VehicleID, fin); err != nil {
				return err
			}
			if err := s.vehicles.RatchetOdometer(txCtx, v.VehicleID, fin, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("trabajo finalized",
		zap.Uint("trabajo_id", trabajo.ID),
		zap.String("identificador", trabajo.Identificador),
		zap.String("estado", estado),
		zap.Uint("finalized_by", caller.UserID),
	)
	return s.trabajos.GetByID(ctx, trabajo.ID)
}

func isResponsable(trabajo *model.Trabajo, userID uint) bool {
	for _, v := range trabajo.Vehiculos {
		if v.ResponsableUserID == userID {
			return true
		}
	}
	return false
}

// UploadEvidencia stores one evidence photo for an assigned vehicle. A
// repeat upload of the same category overwrites the previous image in place,
// so at most one current image exists per (vehicle, trabajo, tipo).
func (s *trabajoService) UploadEvidencia(ctx context.Context, caller authz.Identity, trabajoID, vehicleID uint, in UploadImageInput) (*EvidenciaResult, error) {
	trabajo, err := s.Get(ctx, caller, trabajoID)
	if err != nil {
		return nil, err
	}
	if model.EstadoTerminal(trabajo.Estado) {
		return nil, apperror.Conflict("No se pueden subir imágenes a un trabajo finalizado")
	}
	if !model.ValidImagenTipo(in.Tipo) {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "tipo_imagen",
			Message: "Tipo de imagen inválido: " + in.Tipo,
		})
	}
	assigned, err := s.trabajos.IsVehicleAssigned(ctx, trabajoID, vehicleID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		return nil, apperror.BadRequest("El vehículo no está asignado a este trabajo")
	}

	stored, err := s.store.Save(in.Data, in.Extension)
	if err != nil {
		return nil, err
	}

	existing, err := s.images.GetEvidencia(ctx, vehicleID, trabajoID, in.Tipo)
	switch {
	case err == nil:
		oldURL := existing.ImageURL
		existing.ImageURL = stored.URL
		existing.UploadedBy = caller.UserID
		if err := s.images.Update(ctx, existing); err != nil {
			return nil, err
		}
		if err := s.store.Delete(oldURL); err != nil {
			s.log.Warn("failed to delete replaced evidence file",
				zap.String("url", oldURL), zap.Error(err))
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		existing = &model.VehicleImage{
			VehicleID:  vehicleID,
			TipoImagen: in.Tipo,
			ImageURL:   stored.URL,
			TrabajoID:  &trabajoID,
			UploadedBy: caller.UserID,
		}
		if err := s.images.Create(ctx, existing); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	progress, err := s.evidenciaProgress(ctx, vehicleID, trabajoID)
	if err != nil {
		return nil, err
	}
	return &EvidenciaResult{Imagen: existing, Progreso: progress}, nil
}

// EvidenciaEstado reports per-vehicle evidence progress for a trabajo.
func (s *trabajoService) EvidenciaEstado(ctx context.Context, caller authz.Identity, trabajoID uint) (map[uint]EvidenciaProgress, error) {
	trabajo, err := s.Get(ctx, caller, trabajoID)
	if err != nil {
		return nil, err
	}
	estado := make(map[uint]EvidenciaProgress, len(trabajo.Vehiculos))
	for _, v := range trabajo.Vehiculos {
		progress, err := s.evidenciaProgress(ctx, v.VehicleID, trabajo.ID)
		if err != nil {
			return nil, err
		}
		estado[v.VehicleID] = progress
	}
	return estado, nil
}
