package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
)

// UserFilter narrows List results.
type UserFilter struct {
	Search         string
	Role           string
	IncludeDeleted bool
}

// UserRepository defines data access for users and their role assignments.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsernameOrDNI(ctx context.Context, username, dni string) (bool, error)
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	ReplaceRoles(ctx context.Context, userID uint, roleNames []string, assignedBy uint) error
	SoftDelete(ctx context.Context, id uint) error
	ListRoles(ctx context.Context) ([]model.Role, error)
	GetRoleByName(ctx context.Context, name string) (*model.Role, error)
	CreateRole(ctx context.Context, role *model.Role) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns the gorm-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Roles").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername is case-sensitive on purpose: login must not normalize.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Roles").First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ExistsByUsernameOrDNI(ctx context.Context, username, dni string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.User{}).
		Where("username = ? OR dni = ?", username, dni).
		Count(&count).Error
	return count > 0, err
}

func (r *userRepository) List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.User{})
	if filter.IncludeDeleted {
		q = q.Unscoped()
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where("username LIKE ? OR nombre LIKE ? OR apellidos LIKE ? OR email LIKE ?",
			pattern, pattern, pattern, pattern)
	}
	if filter.Role != "" {
		q = q.Where("EXISTS (SELECT 1 FROM user_roles ur JOIN roles r ON ur.role_id = r.id WHERE ur.user_id = users.id AND r.nombre = ?)",
			filter.Role)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	if err := q.Preload("Roles").Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Save(user).Error
}

func (r *userRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// ReplaceRoles rewrites the user's role set (delete-then-reinsert), stamping
// assigned_by on every new join row.
func (r *userRepository) ReplaceRoles(ctx context.Context, userID uint, roleNames []string, assignedBy uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("user_id = ?", userID).Delete(&model.UserRole{}).Error; err != nil {
		return err
	}
	if len(roleNames) == 0 {
		return nil
	}
	var roles []model.Role
	if err := db.Where("nombre IN ?", roleNames).Find(&roles).Error; err != nil {
		return err
	}
	for _, role := range roles {
		ur := model.UserRole{UserID: userID, RoleID: role.ID, AssignedBy: assignedBy}
		if err := db.Create(&ur).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *userRepository) SoftDelete(ctx context.Context, id uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Model(&model.User{}).Where("id = ?", id).Update("activo", false).Error; err != nil {
		return err
	}
	return db.Delete(&model.User{}, id).Error
}

func (r *userRepository) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := GetDB(ctx, r.db).Order("nombre ASC").Find(&roles).Error
	return roles, err
}

func (r *userRepository) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).First(&role, "nombre = ?", name).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *userRepository) CreateRole(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Create(role).Error
}
