package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTrabajoAssignsSequentialIdentifiers(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(time.Hour)
	fin := inicio.Add(2 * time.Hour)
	year := time.Now().Year()

	first := env.createTrabajo(t, gestor, vehicle, responsable, inicio, fin)
	second := env.createTrabajo(t, gestor, vehicle, responsable, inicio, fin)

	assert.Equal(t, fmt.Sprintf("TRB-%d-0001", year), first.Identificador)
	assert.Equal(t, fmt.Sprintf("TRB-%d-0002", year), second.Identificador)

	// The identifier carries the year the trabajo is created in, even when
	// it is scheduled for a later one.
	nextYear := time.Date(year+1, 3, 1, 10, 0, 0, 0, time.UTC)
	third := env.createTrabajo(t, gestor, vehicle, responsable, nextYear, nextYear.Add(time.Hour))
	assert.Equal(t, fmt.Sprintf("TRB-%d-0003", year), third.Identificador)
}

func TestNextIdentificadorKeepsPerYearSequences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.trabajos.NextIdentificador(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, "TRB-2026-0001", first)

	second, err := env.trabajos.NextIdentificador(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, "TRB-2026-0002", second)

	other, err := env.trabajos.NextIdentificador(ctx, 2027)
	require.NoError(t, err)
	assert.Equal(t, "TRB-2027-0001", other)
}

func TestTrabajoWithoutVehiclesIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	crew := env.createUser(t, "enfermero1", model.RolEnfermero)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	// Scheduling without a vehicle is valid; assignments can come later.
	inicio := time.Now().Add(-2 * time.Hour)
	trabajo, err := env.trabajoSvc.Create(context.Background(), identFor(gestor), CreateTrabajoInput{
		Nombre:      "Guardia preventiva",
		Tipo:        model.TipoOtro,
		FechaInicio: inicio,
		FechaFin:    inicio.Add(time.Hour),
		Usuarios:    []uint{crew.ID},
	})
	require.NoError(t, err)
	assert.Empty(t, trabajo.Vehiculos)

	// With no vehicles assigned the evidence and odometer gates have
	// nothing to check.
	finalized, err := env.trabajoSvc.Finalize(context.Background(), identFor(gestor), trabajo.ID, FinalizeInput{})
	require.NoError(t, err)
	assert.Equal(t, model.EstadoFinalizado, finalized.Estado)

	// Clearing the assignment list through update is valid too.
	inicio = time.Now().Add(time.Hour)
	second := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))
	empty := []TrabajoVehiculoInput{}
	updated, err := env.trabajoSvc.Update(context.Background(), identFor(gestor), second.ID, UpdateTrabajoInput{Vehiculos: &empty})
	require.NoError(t, err)
	assert.Empty(t, updated.Vehiculos)
}

func TestCreateTrabajoValidation(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(time.Hour)
	base := CreateTrabajoInput{
		Nombre:      "Cobertura",
		Tipo:        model.TipoCoberturaEvento,
		FechaInicio: inicio,
		FechaFin:    inicio.Add(time.Hour),
		Vehiculos: []TrabajoVehiculoInput{
			{VehicleID: vehicle.ID, ResponsableUserID: responsable.ID},
		},
	}

	in := base
	in.Tipo = "rescate"
	_, err := env.trabajoSvc.Create(context.Background(), identFor(gestor), in)
	require.NotNil(t, apperror.As(err))

	in = base
	in.FechaFin = in.FechaInicio
	_, err = env.trabajoSvc.Create(context.Background(), identFor(gestor), in)
	require.NotNil(t, apperror.As(err))

	in = base
	lower := 500
	in.Vehiculos = []TrabajoVehiculoInput{
		{VehicleID: vehicle.ID, ResponsableUserID: responsable.ID, KilometrosInicio: &lower},
	}
	_, err = env.trabajoSvc.Create(context.Background(), identFor(gestor), in)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
}

func TestCreateTrabajoRatchetsOdometerAndAssignsPersonnel(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(time.Hour)
	higher := 1200
	trabajo, err := env.trabajoSvc.Create(context.Background(), identFor(gestor), CreateTrabajoInput{
		Nombre:      "Traslado",
		Tipo:        model.TipoTraslado,
		FechaInicio: inicio,
		FechaFin:    inicio.Add(time.Hour),
		Vehiculos: []TrabajoVehiculoInput{
			{VehicleID: vehicle.ID, ResponsableUserID: responsable.ID, KilometrosInicio: &higher},
		},
	})
	require.NoError(t, err)

	updated, err := env.vehicles.GetByID(context.Background(), vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1200, updated.KilometrosActuales)

	// The responsable is part of the personnel set even without an explicit
	// usuarios entry.
	loaded, err := env.trabajos.GetByID(context.Background(), trabajo.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Usuarios, 1)
	assert.Equal(t, responsable.ID, loaded.Usuarios[0].ID)
}

func TestOperationalVisibility(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	assigned := env.createUser(t, "tecnico1", model.RolTecnico)
	outsider := env.createUser(t, "tecnico2", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, assigned, inicio, inicio.Add(time.Hour))

	// Assigned operational user sees the trabajo.
	got, err := env.trabajoSvc.Get(context.Background(), identFor(assigned), trabajo.ID)
	require.NoError(t, err)
	assert.Equal(t, trabajo.ID, got.ID)

	// Unassigned operational user gets a 403, not a 404.
	_, err = env.trabajoSvc.Get(context.Background(), identFor(outsider), trabajo.ID)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Status)

	// Listing is row-filtered for operational callers.
	list, meta, err := env.trabajoSvc.List(context.Background(), identFor(outsider), repository.TrabajoFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.EqualValues(t, 0, meta.Total)

	list, _, err = env.trabajoSvc.List(context.Background(), identFor(assigned), repository.TrabajoFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Management sees everything.
	list, _, err = env.trabajoSvc.List(context.Background(), identFor(gestor), repository.TrabajoFilter{}, 1, 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateTrabajoEstadoRestrictions(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))

	// Terminal states are not reachable through the generic update.
	estado := model.EstadoFinalizado
	_, err := env.trabajoSvc.Update(context.Background(), identFor(gestor), trabajo.ID, UpdateTrabajoInput{Estado: &estado})
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)

	estado = model.EstadoActivo
	updated, err := env.trabajoSvc.Update(context.Background(), identFor(gestor), trabajo.ID, UpdateTrabajoInput{Estado: &estado})
	require.NoError(t, err)
	assert.Equal(t, model.EstadoActivo, updated.Estado)
}

func TestFinalizeRequiresCompleteEvidence(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(-2 * time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))

	in := FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{{VehicleID: vehicle.ID, KilometrosFin: 1100}},
	}

	// No evidence yet: the rejection itemizes all five missing categories.
	_, err := env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, in)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Len(t, appErr.Fields, len(model.ImagenTiposRequeridos))

	// Partial evidence still blocks, naming only what is missing.
	_, err = env.trabajoSvc.UploadEvidencia(context.Background(), identFor(responsable), trabajo.ID, vehicle.ID, UploadImageInput{
		Tipo: model.ImagenFrontal, Data: []byte("x"), Extension: ".jpg",
	})
	require.NoError(t, err)
	_, err = env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, in)
	appErr = apperror.As(err)
	require.NotNil(t, appErr)
	assert.Len(t, appErr.Fields, len(model.ImagenTiposRequeridos)-1)

	// Full evidence unblocks.
	env.uploadAllEvidencia(t, responsable, trabajo.ID, vehicle.ID)
	finalized, err := env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, in)
	require.NoError(t, err)
	assert.Equal(t, model.EstadoFinalizado, finalized.Estado)
	assert.Nil(t, finalized.MotivoFinalizacionAnticipada)
}

func TestFinalizeEarlyRequiresMotivo(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	// fecha_fin in the future: finalizing now is early.
	inicio := time.Now().Add(-time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, time.Now().Add(2*time.Hour))
	env.uploadAllEvidencia(t, responsable, trabajo.ID, vehicle.ID)

	in := FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{{VehicleID: vehicle.ID, KilometrosFin: 1100}},
	}
	_, err := env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, in)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)

	motivo := "Servicio cancelado por el hospital"
	in.Motivo = &motivo
	finalized, err := env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, in)
	require.NoError(t, err)
	assert.Equal(t, model.EstadoFinalizadoAnticipado, finalized.Estado)
	require.NotNil(t, finalized.MotivoFinalizacionAnticipada)
	assert.Equal(t, motivo, *finalized.MotivoFinalizacionAnticipada)
}

func TestFinalizeOdometerGate(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(-2 * time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))
	env.uploadAllEvidencia(t, responsable, trabajo.ID, vehicle.ID)

	// Missing reading.
	_, err := env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{},
	})
	require.NotNil(t, apperror.As(err))

	// Closing reading below the opening one.
	_, err = env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{{VehicleID: vehicle.ID, KilometrosFin: 900}},
	})
	require.NotNil(t, apperror.As(err))

	// Valid reading finalizes, stamps the service date and ratchets the
	// vehicle odometer.
	finalized, err := env.trabajoSvc.Finalize(context.Background(), identFor(responsable), trabajo.ID, FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{{VehicleID: vehicle.ID, KilometrosFin: 1350}},
	})
	require.NoError(t, err)
	require.Len(t, finalized.Vehiculos, 1)
	require.NotNil(t, finalized.Vehiculos[0].KilometrosFin)
	assert.Equal(t, 1350, *finalized.Vehiculos[0].KilometrosFin)

	updated, err := env.vehicles.GetByID(context.Background(), vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1350, updated.KilometrosActuales)
	assert.NotNil(t, updated.FechaUltimoServicio)
}

func TestFinalizeAuthorization(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	crew := env.createUser(t, "enfermero1", model.RolEnfermero)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(-2 * time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))
	require.NoError(t, env.trabajos.AddUsuarios(context.Background(), trabajo.ID, []uint{crew.ID}))
	env.uploadAllEvidencia(t, responsable, trabajo.ID, vehicle.ID)

	in := FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{{VehicleID: vehicle.ID, KilometrosFin: 1100}},
	}

	// Assigned crew that is not the responsable cannot finalize.
	_, err := env.trabajoSvc.Finalize(context.Background(), identFor(crew), trabajo.ID, in)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusForbidden, appErr.Status)

	// Management can.
	_, err = env.trabajoSvc.Finalize(context.Background(), identFor(gestor), trabajo.ID, in)
	assert.NoError(t, err)
}

func TestTerminalTrabajoIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(-2 * time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))
	env.uploadAllEvidencia(t, responsable, trabajo.ID, vehicle.ID)

	in := FinalizeInput{
		Kilometros: []VehiculoKilometrosInput{{VehicleID: vehicle.ID, KilometrosFin: 1100}},
	}
	_, err := env.trabajoSvc.Finalize(context.Background(), identFor(gestor), trabajo.ID, in)
	require.NoError(t, err)

	// A second finalize is rejected.
	_, err = env.trabajoSvc.Finalize(context.Background(), identFor(gestor), trabajo.ID, in)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)

	// So is any update.
	nombre := "Otro nombre"
	_, err = env.trabajoSvc.Update(context.Background(), identFor(gestor), trabajo.ID, UpdateTrabajoInput{Nombre: &nombre})
	appErr = apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)

	// And any further evidence upload.
	_, err = env.trabajoSvc.UploadEvidencia(context.Background(), identFor(responsable), trabajo.ID, vehicle.ID, UploadImageInput{
		Tipo: model.ImagenFrontal, Data: []byte("x"), Extension: ".jpg",
	})
	appErr = apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)
}

func TestEvidenciaOverwrite(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(-time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, time.Now().Add(time.Hour))

	first, err := env.trabajoSvc.UploadEvidencia(context.Background(), identFor(responsable), trabajo.ID, vehicle.ID, UploadImageInput{
		Tipo: model.ImagenFrontal, Data: []byte("first"), Extension: ".jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Progreso.Completado)
	assert.False(t, first.Progreso.Completo)

	second, err := env.trabajoSvc.UploadEvidencia(context.Background(), identFor(responsable), trabajo.ID, vehicle.ID, UploadImageInput{
		Tipo: model.ImagenFrontal, Data: []byte("second"), Extension: ".jpg",
	})
	require.NoError(t, err)

	// Same row, new URL, old file deleted; progress did not advance.
	assert.Equal(t, first.Imagen.ID, second.Imagen.ID)
	assert.NotEqual(t, first.Imagen.ImageURL, second.Imagen.ImageURL)
	assert.Contains(t, env.store.deleted, first.Imagen.ImageURL)
	assert.Equal(t, 1, second.Progreso.Completado)

	images, err := env.images.ListByTrabajo(context.Background(), trabajo.ID)
	require.NoError(t, err)
	assert.Len(t, images, 1)
}

func TestUploadEvidenciaRejectsUnassignedVehicleAndBadTipo(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)
	other := env.createVehicle(t, "5678DEF", 500)

	inicio := time.Now().Add(-time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, time.Now().Add(time.Hour))

	_, err := env.trabajoSvc.UploadEvidencia(context.Background(), identFor(responsable), trabajo.ID, other.ID, UploadImageInput{
		Tipo: model.ImagenFrontal, Data: []byte("x"), Extension: ".jpg",
	})
	require.NotNil(t, apperror.As(err))

	_, err = env.trabajoSvc.UploadEvidencia(context.Background(), identFor(responsable), trabajo.ID, vehicle.ID, UploadImageInput{
		Tipo: "techo", Data: []byte("x"), Extension: ".jpg",
	})
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
}

func TestDeleteTrabajoRules(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	inicio := time.Now().Add(time.Hour)
	trabajo := env.createTrabajo(t, gestor, vehicle, responsable, inicio, inicio.Add(time.Hour))

	estado := model.EstadoActivo
	_, err := env.trabajoSvc.Update(context.Background(), identFor(gestor), trabajo.ID, UpdateTrabajoInput{Estado: &estado})
	require.NoError(t, err)

	err = env.trabajoSvc.Delete(context.Background(), identFor(gestor), trabajo.ID)
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.Status)

	estado = model.EstadoProgramado
	_, err = env.trabajoSvc.Update(context.Background(), identFor(gestor), trabajo.ID, UpdateTrabajoInput{Estado: &estado})
	require.NoError(t, err)
	require.NoError(t, env.trabajoSvc.Delete(context.Background(), identFor(gestor), trabajo.ID))

	_, err = env.trabajoSvc.Get(context.Background(), identFor(gestor), trabajo.ID)
	appErr = apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestCalendarioOverlap(t *testing.T) {
	env := newTestEnv(t)
	gestor := env.createUser(t, "gestor", model.RolGestor)
	responsable := env.createUser(t, "tecnico1", model.RolTecnico)
	vehicle := env.createVehicle(t, "1234ABC", 1000)

	day := func(d int, hour int) time.Time {
		return time.Date(2026, 9, d, hour, 0, 0, 0, time.UTC)
	}
	inside := env.createTrabajo(t, gestor, vehicle, responsable, day(10, 9), day(10, 12))
	spanning := env.createTrabajo(t, gestor, vehicle, responsable, day(9, 22), day(10, 2))
	env.createTrabajo(t, gestor, vehicle, responsable, day(20, 9), day(20, 12))

	trabajos, err := env.trabajoSvc.Calendario(context.Background(), identFor(gestor), day(10, 0), day(11, 0))
	require.NoError(t, err)
	require.Len(t, trabajos, 2)
	ids := []uint{trabajos[0].ID, trabajos[1].ID}
	assert.Contains(t, ids, inside.ID)
	assert.Contains(t, ids, spanning.ID)

	_, err = env.trabajoSvc.Calendario(context.Background(), identFor(gestor), day(11, 0), day(10, 0))
	require.NotNil(t, apperror.As(err))
}
