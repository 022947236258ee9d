package handler

import (
	"strconv"
	"time"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type TrabajoHandler struct {
	trabajoService service.TrabajoService
	maxUploadSize  int64
}

func NewTrabajoHandler(trabajoService service.TrabajoService, maxUploadSize int64) *TrabajoHandler {
	return &TrabajoHandler{trabajoService: trabajoService, maxUploadSize: maxUploadSize}
}

func (h *TrabajoHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	management := middleware.RequireRoles(model.RolAdministrador, model.RolGestor)

	trabajos := router.Group("/trabajos", auth)
	{
		trabajos.GET("", h.List)
		trabajos.GET("/mis-trabajos", h.MisTrabajos)
		trabajos.GET("/calendario", h.Calendario)
		trabajos.GET("/:id", h.Get)
		trabajos.GET("/:id/evidencias", h.EvidenciaEstado)
		trabajos.POST("/:id/finalizar", h.Finalize)
		trabajos.POST("/:id/vehiculos/:vehicleId/imagenes", h.UploadEvidencia)
		trabajos.POST("", management, h.Create)
		trabajos.PUT("/:id", management, h.Update)
		trabajos.DELETE("/:id", management, h.Delete)
	}
}

func trabajoFilterFromQuery(c *gin.Context) (repository.TrabajoFilter, error) {
	filter := repository.TrabajoFilter{
		Estado: c.Query("estado"),
		Tipo:   c.Query("tipo"),
		Search: c.Query("search"),
	}
	if raw := c.Query("fecha_desde"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return filter, apperror.BadRequest("fecha_desde inválida")
		}
		filter.FechaDesde = &t
	}
	if raw := c.Query("fecha_hasta"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return filter, apperror.BadRequest("fecha_hasta inválida")
		}
		filter.FechaHasta = &t
	}
	return filter, nil
}

// List returns paginated trabajos; operational roles only see their own
// @Summary      List trabajos
// @Tags         trabajos
// @Security     BearerAuth
// @Produce      json
// @Param        page         query  int     false  "Page number (default: 1)"
// @Param        limit        query  int     false  "Items per page (default: 20)"
// @Param        estado       query  string  false  "Filter by estado"
// @Param        tipo         query  string  false  "Filter by tipo"
// @Param        search       query  string  false  "Search by name or identifier"
// @Param        fecha_desde  query  string  false  "Start of date range"
// @Param        fecha_hasta  query  string  false  "End of date range"
// @Success      200  {object}  response.Envelope
// @Router       /trabajos [get]
func (h *TrabajoHandler) List(c *gin.Context) {
	filter, err := trabajoFilterFromQuery(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	params := pagination.Parse(c)

	ident, _ := middleware.Identity(c)
	trabajos, meta, err := h.trabajoService.List(c.Request.Context(), ident, filter, params.Page, params.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Paginated(c, trabajos, meta)
}

// MisTrabajos returns the caller's assigned trabajos
// @Summary      List own trabajos
// @Tags         trabajos
// @Security     BearerAuth
// @Produce      json
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        estado  query  string  false  "Filter by estado"
// @Success      200  {object}  response.Envelope
// @Router       /trabajos/mis-trabajos [get]
func (h *TrabajoHandler) MisTrabajos(c *gin.Context) {
	filter, err := trabajoFilterFromQuery(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	params := pagination.Parse(c)

	ident, _ := middleware.Identity(c)
	trabajos, meta, err := h.trabajoService.MisTrabajos(c.Request.Context(), ident, filter, params.Page, params.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Paginated(c, trabajos, meta)
}

// Calendario returns trabajos overlapping a month or an explicit date range
// @Summary      Calendar view
// @Tags         trabajos
// @Security     BearerAuth
// @Produce      json
// @Param        anio   query  int     false  "Year of the month view"
// @Param        mes    query  int     false  "Month of the month view (1-12)"
// @Param        desde  query  string  false  "Range start (YYYY-MM-DD or RFC3339)"
// @Param        hasta  query  string  false  "Range end (YYYY-MM-DD or RFC3339)"
// @Success      200  {object}  response.Envelope
// @Router       /trabajos/calendario [get]
func (h *TrabajoHandler) Calendario(c *gin.Context) {
	var desde, hasta time.Time
	if c.Query("anio") != "" || c.Query("mes") != "" {
		anio, err := strconv.Atoi(c.Query("anio"))
		if err != nil {
			response.Fail(c, apperror.BadRequest("anio inválido"))
			return
		}
		mes, err := strconv.Atoi(c.Query("mes"))
		if err != nil || mes < 1 || mes > 12 {
			response.Fail(c, apperror.BadRequest("mes inválido (1-12)"))
			return
		}
		desde = time.Date(anio, time.Month(mes), 1, 0, 0, 0, 0, time.UTC)
		hasta = desde.AddDate(0, 1, 0)
	} else {
		var err error
		desde, err = parseDate(c.Query("desde"))
		if err != nil {
			response.Fail(c, apperror.BadRequest("El parámetro desde es obligatorio (YYYY-MM-DD)"))
			return
		}
		hasta, err = parseDate(c.Query("hasta"))
		if err != nil {
			response.Fail(c, apperror.BadRequest("El parámetro hasta es obligatorio (YYYY-MM-DD)"))
			return
		}
	}

	ident, _ := middleware.Identity(c)
	trabajos, err := h.trabajoService.Calendario(c.Request.Context(), ident, desde, hasta)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, trabajos, "OK")
}

// Get returns one trabajo with its assignments
// @Summary      Get trabajo
// @Tags         trabajos
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "Trabajo ID"
// @Success      200  {object}  response.Envelope
// @Failure      403  {object}  response.Envelope
// @Failure      404  {object}  response.Envelope
// @Router       /trabajos/{id} [get]
func (h *TrabajoHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	ident, _ := middleware.Identity(c)
	trabajo, err := h.trabajoService.Get(c.Request.Context(), ident, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, trabajo, "OK")
}

// Create schedules a trabajo with vehicle and personnel assignments
// @Summary      Create trabajo
// @Tags         trabajos
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateTrabajoInput  true  "Trabajo payload"
// @Success      201  {object}  response.Envelope
// @Failure      422  {object}  response.Envelope
// @Router       /trabajos [post]
func (h *TrabajoHandler) Create(c *gin.Context) {
	var req service.CreateTrabajoInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos del trabajo inválidos: "+err.Error()))
		return
	}

	ident, _ := middleware.Identity(c)
	trabajo, err := h.trabajoService.Create(c.Request.Context(), ident, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, trabajo, "Trabajo creado")
}

// Update modifies a non-terminal trabajo
// @Summary      Update trabajo
// @Tags         trabajos
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                         true  "Trabajo ID"
// @Param        payload  body  service.UpdateTrabajoInput  true  "Update payload"
// @Success      200  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Router       /trabajos/{id} [put]
func (h *TrabajoHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req service.UpdateTrabajoInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos del trabajo inválidos: "+err.Error()))
		return
	}

	ident, _ := middleware.Identity(c)
	trabajo, err := h.trabajoService.Update(c.Request.Context(), ident, id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, trabajo, "Trabajo actualizado")
}

// Delete soft-deletes a non-active trabajo
// @Summary      Delete trabajo
// @Tags         trabajos
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "Trabajo ID"
// @Success      200  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Router       /trabajos/{id} [delete]
func (h *TrabajoHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	ident, _ := middleware.Identity(c)
	if err := h.trabajoService.Delete(c.Request.Context(), ident, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, nil, "Trabajo eliminado")
}

// Finalize closes a trabajo once evidence and odometer readings are complete
// @Summary      Finalize trabajo
// @Tags         trabajos
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                    true  "Trabajo ID"
// @Param        payload  body  service.FinalizeInput  true  "Closing readings and optional motivo"
// @Success      200  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Failure      422  {object}  response.Envelope
// @Router       /trabajos/{id}/finalizar [post]
func (h *TrabajoHandler) Finalize(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req service.FinalizeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos de finalización inválidos: "+err.Error()))
		return
	}

	ident, _ := middleware.Identity(c)
	trabajo, err := h.trabajoService.Finalize(c.Request.Context(), ident, id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, trabajo, "Trabajo finalizado")
}

// UploadEvidencia stores one evidence photo for an assigned vehicle
// @Summary      Upload evidence image
// @Tags         trabajos
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id           path      int     true  "Trabajo ID"
// @Param        vehicleId    path      int     true  "Vehicle ID"
// @Param        imagen       formData  file    true  "Image file"
// @Param        tipo_imagen  formData  string  true  "Category: frontal, lateral_derecho, trasera, lateral_izquierdo, liquidos"
// @Success      201  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Router       /trabajos/{id}/vehiculos/{vehicleId}/imagenes [post]
func (h *TrabajoHandler) UploadEvidencia(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	vehicleID, err := strconv.ParseUint(c.Param("vehicleId"), 10, 32)
	if err != nil || vehicleID == 0 {
		response.Fail(c, apperror.BadRequest("Identificador de vehículo inválido"))
		return
	}
	in, err := readImageUpload(c, h.maxUploadSize)
	if err != nil {
		response.Fail(c, err)
		return
	}

	ident, _ := middleware.Identity(c)
	result, err := h.trabajoService.UploadEvidencia(c.Request.Context(), ident, id, uint(vehicleID), in)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, result, "Imagen de evidencia subida")
}

// EvidenciaEstado reports per-vehicle evidence progress
// @Summary      Evidence progress
// @Tags         trabajos
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "Trabajo ID"
// @Success      200  {object}  response.Envelope
// @Router       /trabajos/{id}/evidencias [get]
func (h *TrabajoHandler) EvidenciaEstado(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	ident, _ := middleware.Identity(c)
	estado, err := h.trabajoService.EvidenciaEstado(c.Request.Context(), ident, id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, estado, "OK")
}
