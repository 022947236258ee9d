package handler

import (
	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
}

func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc) {
	management := middleware.RequireRoles(model.RolAdministrador, model.RolGestor)

	users := router.Group("/usuarios", auth, management)
	{
		users.GET("", h.List)
		users.POST("", h.Create)
		users.GET("/:id", h.Get)
		users.PUT("/:id", h.Update)
		users.PUT("/:id/roles", h.UpdateRoles)
		users.DELETE("/:id", h.Delete)
	}
	router.GET("/roles", auth, management, h.ListRoles)
	router.POST("/roles", auth, middleware.RequireRoles(model.RolAdministrador), h.CreateRole)
}

// List returns paginated users with optional search/role filters
// @Summary      List users
// @Tags         usuarios
// @Security     BearerAuth
// @Produce      json
// @Param        page    query  int     false  "Page number (default: 1)"
// @Param        limit   query  int     false  "Items per page (default: 20)"
// @Param        search  query  string  false  "Search by username, name or email"
// @Param        role    query  string  false  "Filter by role name"
// @Success      200  {object}  response.Envelope
// @Router       /usuarios [get]
func (h *UserHandler) List(c *gin.Context) {
	params := pagination.Parse(c)
	filter := repository.UserFilter{
		Search:         c.Query("search"),
		Role:           c.Query("role"),
		IncludeDeleted: c.Query("include_deleted") == "true",
	}

	users, meta, err := h.userService.List(c.Request.Context(), filter, params.Page, params.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Paginated(c, users, meta)
}

// Create registers a staff member
// @Summary      Create user
// @Tags         usuarios
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  service.CreateUserInput  true  "User payload"
// @Success      201  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Failure      422  {object}  response.Envelope
// @Router       /usuarios [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos de usuario inválidos: "+err.Error()))
		return
	}

	ident, _ := middleware.Identity(c)
	user, err := h.userService.Create(c.Request.Context(), ident, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, user, "Usuario creado")
}

// Get returns one user
// @Summary      Get user
// @Tags         usuarios
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "User ID"
// @Success      200  {object}  response.Envelope
// @Failure      404  {object}  response.Envelope
// @Router       /usuarios/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, user, "OK")
}

// Update modifies a user's profile
// @Summary      Update user
// @Tags         usuarios
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                      true  "User ID"
// @Param        payload  body  service.UpdateUserInput  true  "Update payload"
// @Success      200  {object}  response.Envelope
// @Failure      403  {object}  response.Envelope
// @Router       /usuarios/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req service.UpdateUserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("Datos de usuario inválidos: "+err.Error()))
		return
	}

	ident, _ := middleware.Identity(c)
	user, err := h.userService.Update(c.Request.Context(), ident, id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, user, "Usuario actualizado")
}

type updateRolesRequest struct {
	Roles []string `json:"roles" binding:"required,min=1"`
}

// UpdateRoles replaces a user's role set
// @Summary      Update user roles
// @Tags         usuarios
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                 true  "User ID"
// @Param        payload  body  updateRolesRequest  true  "Role names"
// @Success      200  {object}  response.Envelope
// @Failure      403  {object}  response.Envelope
// @Router       /usuarios/{id}/roles [put]
func (h *UserHandler) UpdateRoles(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var req updateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("La lista de roles es obligatoria"))
		return
	}

	ident, _ := middleware.Identity(c)
	user, err := h.userService.UpdateRoles(c.Request.Context(), ident, id, req.Roles)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, user, "Roles actualizados")
}

// Delete soft-deletes a user and revokes their sessions
// @Summary      Delete user
// @Tags         usuarios
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  int  true  "User ID"
// @Success      200  {object}  response.Envelope
// @Failure      403  {object}  response.Envelope
// @Router       /usuarios/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}

	ident, _ := middleware.Identity(c)
	if err := h.userService.Delete(c.Request.Context(), ident, id); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, nil, "Usuario eliminado")
}

// ListRoles returns the fixed role vocabulary
// @Summary      List roles
// @Tags         usuarios
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Envelope
// @Router       /roles [get]
func (h *UserHandler) ListRoles(c *gin.Context) {
	roles, err := h.userService.ListRoles(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, roles, "OK")
}

type createRoleRequest struct {
	Nombre      string  `json:"nombre" binding:"required"`
	Descripcion *string `json:"descripcion"`
}

// CreateRole registers a custom role (administrators only)
// @Summary      Create role
// @Tags         usuarios
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  createRoleRequest  true  "Role payload"
// @Success      201  {object}  response.Envelope
// @Failure      409  {object}  response.Envelope
// @Router       /roles [post]
func (h *UserHandler) CreateRole(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperror.BadRequest("El nombre del rol es obligatorio"))
		return
	}

	ident, _ := middleware.Identity(c)
	role, err := h.userService.CreateRole(c.Request.Context(), ident, req.Nombre, req.Descripcion)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, role, "Rol creado")
}
