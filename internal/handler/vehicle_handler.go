package handler

import (
	"strconv"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type VehicleHandler struct {
	vehicleService service.VehicleService
	maxUploadSize  int64
}

func NewVehicleHandler(vehicleService service.VehicleService, maxUploadSize int64) *VehicleHandler {
	return &VehicleHandler{vehicleService: vehicleService, maxUploadSize: maxUploadSize}
}

func (h *VehicleHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	management := middleware.RequireRoles(model.RolAdministrador, model.RolGestor)

	vehicles := router.Group("/vehiculos", auth)
	{
		vehicles.GET("", h.List)
		vehicles.GET("/:id", h.Get)
		vehicles.GET("/:id/imagenes", h.ListImages)
		vehicles.POST("/:id/imagenes", h.UploadImage)
		vehicles.POST("", management, h.Create)
		vehicles.PUT("/:id", management, h.Update)
		vehicles.DELETE("/:id", management, h.Delete)
	}
}

// List returns paginated vehicles with optional search
// @Summary      List vehicles
// @Tags         vehiculos
// @Security     BearerAuth
// @Produce      json
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        search  query  string  false  "Search by plate or alias"
// @Success      200  {object}  response.Envelope
// @Router       /vehiculos [get]
func (h *VehicleHandler) List(c *gin.Context) {
	params := pagination.Parse(c)
	vehicles, meta, err := h.vehicleService.List(c.Request.Context(), c.Query("search"), params.Page, params.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Paginated(c, vehicles, meta)
}

// Get returns one vehicle
// @Summary      Get vehicle
// @Tags         vehiculos
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "Vehicle ID"
// @Success      200  {object}  response.Envelope
// @Failure      404  {object}  response.Envelope
// @Router       /vehiculos/{id} [get]
func (h *VehicleHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	vehicle, err := h.vehicleService.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, vehicle, "OK")
}

// Create registers a vehicle
// @Summary      Create vehicle
// @Tags         vehiculos
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateVehicleInput  true  "Vehicle payload"
// @Success      201  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Router       /vehiculos [post]
func (h *VehicleHandler) Create(c *gin.Context) {
	var req service.CreateVehicleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos del vehículo inválidos: "+err.Error()))
		return
	}

	vehicle, err := h.vehicleService.Create(c.Request.Context(), req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, vehicle, "Vehículo creado")
}

// Update modifies a vehicle; the odometer only moves forward
// @Summary      Update vehicle
// @Tags         vehiculos
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                         true  "Vehicle ID"
// @Param        payload  body  service.UpdateVehicleInput  true  "Update payload"
// @Success      200  {object}  response.Envelope
// @Failure      422  {object}  response.Envelope
// @Router       /vehiculos/{id} [put]
func (h *VehicleHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req service.UpdateVehicleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos del vehículo inválidos: "+err.Error()))
		return
	}

	vehicle, err := h.vehicleService.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, vehicle, "Vehículo actualizado")
}

// Delete soft-deletes a vehicle not assigned to open trabajos
// @Summary      Delete vehicle
// @Tags         vehiculos
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "Vehicle ID"
// @Success      200  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Router       /vehiculos/{id} [delete]
func (h *VehicleHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.vehicleService.Delete(c.Request.Context(), id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, nil, "Vehículo eliminado")
}

// UploadImage stores a gallery photo for the vehicle
// @Summary      Upload vehicle image
// @Tags         vehiculos
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id           path      int     true   "Vehicle ID"
// @Param        imagen       formData  file    true   "Image file"
// @Param        tipo_imagen  formData  string  true   "Category: frontal, lateral_derecho, trasera, lateral_izquierdo, liquidos"
// @Param        trabajo_id   formData  int     false  "Associated trabajo"
// @Success      201  {object}  response.Envelope
// @Router       /vehiculos/{id}/imagenes [post]
func (h *VehicleHandler) UploadImage(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	in, err := readImageUpload(c, h.maxUploadSize)
	if err != nil {
		response.Fail(c, err)
		return
	}
	if raw := c.PostForm("trabajo_id"); raw != "" {
		trabajoID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			response.Fail(c, apperror.BadRequest("trabajo_id inválido"))
			return
		}
		tid := uint(trabajoID)
		in.TrabajoID = &tid
	}

	ident, _ := middleware.Identity(c)
	image, err := h.vehicleService.UploadImage(c.Request.Context(), id, ident.UserID, in)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, image, "Imagen subida")
}

// ListImages returns the vehicle's images, optionally filtered by trabajo
// @Summary      List vehicle images
// @Tags         vehiculos
// @Security     BearerAuth
// @Produce      json
// @Param        id          path   int  true   "Vehicle ID"
// @Param        trabajo_id  query  int  false  "Filter by trabajo"
// @Success      200  {object}  response.Envelope
// @Router       /vehiculos/{id}/imagenes [get]
func (h *VehicleHandler) ListImages(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var trabajoID *uint
	if raw := c.Query("trabajo_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			response.Fail(c, apperror.BadRequest("trabajo_id inválido"))
			return
		}
		tid := uint(parsed)
		trabajoID = &tid
	}

	images, err := h.vehicleService.ListImages(c.Request.Context(), id, trabajoID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, images, "OK")
}
