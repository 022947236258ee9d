package service

import (
	"context"
	"errors"
	"strings"

	"backend/internal/authz"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"
	"backend/pkg/pagination"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateUserInput is the payload for registering a staff member.
type CreateUserInput struct {
	Username  string   `json:"username" binding:"required,min=3,max=100"`
	Password  string   `json:"password" binding:"required"`
	Email     *string  `json:"email" binding:"omitempty,email"`
	Nombre    string   `json:"nombre" binding:"required"`
	Apellidos string   `json:"apellidos" binding:"required"`
	DNI       string   `json:"dni" binding:"required"`
	Direccion *string  `json:"direccion"`
	Telefono  *string  `json:"telefono"`
	Roles     []string `json:"roles" binding:"required,min=1"`
}

// UpdateUserInput carries partial profile changes; nil fields stay untouched.
type UpdateUserInput struct {
	Email     *string `json:"email" binding:"omitempty,email"`
	Nombre    *string `json:"nombre"`
	Apellidos *string `json:"apellidos"`
	Direccion *string `json:"direccion"`
	Telefono  *string `json:"telefono"`
	Activo    *bool   `json:"activo"`
	Password  *string `json:"password"`
}

// UserService implements staff management with the privilege-tier rules: a
// gestor manages operational staff but never touches administrators.
type UserService interface {
	Create(ctx context.Context, caller authz.Identity, in CreateUserInput) (*model.User, error)
	Get(ctx context.Context, id uint) (*model.User, error)
	List(ctx context.Context, filter repository.UserFilter, page, limit int) ([]model.User, *pagination.Meta, error)
	Update(ctx context.Context, caller authz.Identity, id uint, in UpdateUserInput) (*model.User, error)
	UpdateRoles(ctx context.Context, caller authz.Identity, id uint, roles []string) (*model.User, error)
	Delete(ctx context.Context, caller authz.Identity, id uint) error
	ListRoles(ctx context.Context) ([]model.Role, error)
	CreateRole(ctx context.Context, caller authz.Identity, nombre string, descripcion *string) (*model.Role, error)
}

type userService struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	txm    repository.TransactionManager
	cfg    userServiceConfig
	log    *zap.Logger
}

type userServiceConfig struct {
	BcryptCost int
}

// NewUserService wires the user service.
func NewUserService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	txm repository.TransactionManager,
	bcryptCost int,
	log *zap.Logger,
) UserService {
	return &userService{
		users:  users,
		tokens: tokens,
		txm:    txm,
		cfg:    userServiceConfig{BcryptCost: bcryptCost},
		log:    log,
	}
}

func validateRoleNames(roles []string) error {
	for _, r := range roles {
		if !model.ValidRole(r) {
			return apperror.Validation(apperror.FieldError{
				Field:   "roles",
				Message: "Rol inválido: " + r,
			})
		}
	}
	return nil
}

func (s *userService) Create(ctx context.Context, caller authz.Identity, in CreateUserInput) (*model.User, error) {
	if errs := ValidatePasswordStrength(in.Password); len(errs) > 0 {
		return nil, apperror.Validation(errs...)
	}
	if err := validateRoleNames(in.Roles); err != nil {
		return nil, err
	}
	if !authz.CanGrantRoles(caller, in.Roles) {
		return nil, apperror.Forbidden("Solo un administrador puede asignar el rol administrador")
	}

	dni := strings.ToUpper(strings.TrimSpace(in.DNI))
	exists, err := s.users.ExistsByUsernameOrDNI(ctx, in.Username, dni)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Conflict("Ya existe un usuario con ese nombre de usuario o DNI")
	}

	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		Nombre:       in.Nombre,
		Apellidos:    in.Apellidos,
		DNI:          dni,
		Direccion:    in.Direccion,
		Telefono:     in.Telefono,
		Activo:       true,
	}
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.Create(txCtx, &user); err != nil {
			return err
		}
		return s.users.ReplaceRoles(txCtx, user.ID, in.Roles, caller.UserID)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Uint("created_by", caller.UserID),
	)
	return s.users.GetByID(ctx, user.ID)
}

func (s *userService) Get(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Usuario")
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) List(ctx context.Context, filter repository.UserFilter, page, limit int) ([]model.User, *pagination.Meta, error) {
	users, total, err := s.users.List(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, nil, err
	}
	return users, pagination.NewMeta(total, page, limit), nil
}

func (s *userService) Update(ctx context.Context, caller authz.Identity, id uint, in UpdateUserInput) (*model.User, error) {
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyUser(caller, target.RoleNames()) {
		return nil, apperror.Forbidden("No puedes modificar a un administrador")
	}

	fields := map[string]interface{}{}
	if in.Email != nil {
		fields["email"] = *in.Email
	}
	if in.Nombre != nil {
		fields["nombre"] = *in.Nombre
	}
	if in.Apellidos != nil {
		fields["apellidos"] = *in.Apellidos
	}
	if in.Direccion != nil {
		fields["direccion"] = *in.Direccion
	}
	if in.Telefono != nil {
		fields["telefono"] = *in.Telefono
	}
	if in.Activo != nil {
		fields["activo"] = *in.Activo
	}
	if in.Password != nil {
		// Password resets are an administrator-only action.
		if !authz.IsAdmin(caller) {
			return nil, apperror.Forbidden("Solo un administrador puede restablecer contraseñas")
		}
		if errs := ValidatePasswordStrength(*in.Password); len(errs) > 0 {
			return nil, apperror.Validation(errs...)
		}
		hash, err := HashPassword(*in.Password, s.cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
		fields["password_hash"] = hash
	}
	if len(fields) == 0 {
		return target, nil
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.UpdateFields(txCtx, id, fields); err != nil {
			return err
		}
		// A password reset or deactivation kills existing sessions.
		if in.Password != nil || (in.Activo != nil && !*in.Activo) {
			return s.tokens.RevokeAllForUser(txCtx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

func (s *userService) UpdateRoles(ctx context.Context, caller authz.Identity, id uint, roles []string) (*model.User, error) {
	if len(roles) == 0 {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "roles",
			Message: "El usuario debe tener al menos un rol",
		})
	}
	if err := validateRoleNames(roles); err != nil {
		return nil, err
	}

	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyUser(caller, target.RoleNames()) {
		return nil, apperror.Forbidden("No puedes modificar a un administrador")
	}
	if !authz.CanGrantRoles(caller, roles) {
		return nil, apperror.Forbidden("Solo un administrador puede asignar el rol administrador")
	}

	if err := s.users.ReplaceRoles(ctx, id, roles, caller.UserID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

// Delete soft-deletes the account and revokes every open session with it.
// Self-deletion is rejected so the last administrator cannot lock everyone
// out by accident.
func (s *userService) Delete(ctx context.Context, caller authz.Identity, id uint) error {
	if caller.UserID == id {
		return apperror.BadRequest("No puedes eliminar tu propia cuenta")
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanModifyUser(caller, target.RoleNames()) {
		return apperror.Forbidden("No puedes eliminar a un administrador")
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.users.SoftDelete(txCtx, id); err != nil {
			return err
		}
		return s.tokens.RevokeAllForUser(txCtx, id)
	})
	if err != nil {
		return err
	}
	s.log.Info("user deleted",
		zap.Uint("user_id", id),
		zap.Uint("deleted_by", caller.UserID),
	)
	return nil
}

func (s *userService) ListRoles(ctx context.Context) ([]model.Role, error) {
	return s.users.ListRoles(ctx)
}

// CreateRole registers a custom role name. Admin only; the five seeded roles
// remain the authorization vocabulary.
func (s *userService) CreateRole(ctx context.Context, caller authz.Identity, nombre string, descripcion *string) (*model.Role, error) {
	if !authz.IsAdmin(caller) {
		return nil, apperror.Forbidden("Solo un administrador puede crear roles")
	}
	nombre = strings.ToLower(strings.TrimSpace(nombre))
	if nombre == "" {
		return nil, apperror.Validation(apperror.FieldError{
			Field:   "nombre",
			Message: "El nombre del rol es obligatorio",
		})
	}
	if _, err := s.users.GetRoleByName(ctx, nombre); err == nil {
		return nil, apperror.Conflict("Ya existe un rol con ese nombre")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	role := model.Role{Nombre: nombre, Descripcion: descripcion}
	if err := s.users.CreateRole(ctx, &role); err != nil {
		return nil, err
	}
	return &role, nil
}
