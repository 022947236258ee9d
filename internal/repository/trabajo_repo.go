package repository

import (
	"context"
	"fmt"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrabajoFilter narrows List results. AssignedUserID, when set, restricts
// rows to trabajos where that user appears in the personnel relation
// (operational row-level visibility).
type TrabajoFilter struct {
	Estado         string
	Tipo           string
	FechaDesde     *time.Time
	FechaHasta     *time.Time
	Search         string
	AssignedUserID uint
}

// TrabajoRepository defines data access for trabajos, their assignment
// relations and the per-year identifier sequence.
type TrabajoRepository interface {
	Create(ctx context.Context, trabajo *model.Trabajo) error
	GetByID(ctx context.Context, id uint) (*model.Trabajo, error)
	List(ctx context.Context, filter TrabajoFilter, offset, limit int) ([]model.Trabajo, int64, error)
	Calendar(ctx context.Context, desde, hasta time.Time, assignedUserID uint) ([]model.Trabajo, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error
	ReplaceVehiculos(ctx context.Context, trabajoID uint, vehiculos []model.TrabajoVehiculo) error
	ReplaceUsuarios(ctx context.Context, trabajoID uint, userIDs []uint) error
	AddUsuarios(ctx context.Context, trabajoID uint, userIDs []uint) error
	SoftDelete(ctx context.Context, id uint) error
	MarkFinalizado(ctx context.Context, id uint, estado string, motivo *string) (bool, error)
	SetKilometrosFin(ctx context.Context, trabajoID, vehicleID uint, kilometros int) error
	IsVehicleAssigned(ctx context.Context, trabajoID, vehicleID uint) (bool, error)
	NextIdentificador(ctx context.Context, year int) (string, error)
}

type trabajoRepository struct {
	db *gorm.DB
}

// NewTrabajoRepository returns the gorm-backed TrabajoRepository.
func NewTrabajoRepository(db *gorm.DB) TrabajoRepository {
	return &trabajoRepository{db: db}
}

func (r *trabajoRepository) Create(ctx context.Context, trabajo *model.Trabajo) error {
	return GetDB(ctx, r.db).Create(trabajo).Error
}

func (r *trabajoRepository) GetByID(ctx context.Context, id uint) (*model.Trabajo, error) {
	var trabajo model.Trabajo
	err := GetDB(ctx, r.db).
		Preload("Vehiculos.Vehicle").
		Preload("Vehiculos.Responsable").
		Preload("Usuarios.Roles").
		Preload("Creador").
		First(&trabajo, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &trabajo, nil
}

func (r *trabajoRepository) applyFilter(q *gorm.DB, filter TrabajoFilter) *gorm.DB {
	if filter.AssignedUserID != 0 {
		q = q.Where("EXISTS (SELECT 1 FROM trabajo_usuarios tu WHERE tu.trabajo_id = trabajos.id AND tu.user_id = ?)",
			filter.AssignedUserID)
	}
	if filter.Estado != "" {
		q = q.Where("estado = ?", filter.Estado)
	}
	if filter.Tipo != "" {
		q = q.Where("tipo = ?", filter.Tipo)
	}
	if filter.FechaDesde != nil {
		q = q.Where("fecha_inicio >= ?", *filter.FechaDesde)
	}
	if filter.FechaHasta != nil {
		q = q.Where("fecha_fin <= ?", *filter.FechaHasta)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where("nombre LIKE ? OR identificador LIKE ?", pattern, pattern)
	}
	return q
}

func (r *trabajoRepository) List(ctx context.Context, filter TrabajoFilter, offset, limit int) ([]model.Trabajo, int64, error) {
	q := r.applyFilter(GetDB(ctx, r.db).Model(&model.Trabajo{}), filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var trabajos []model.Trabajo
	err := q.Preload("Vehiculos.Vehicle").
		Preload("Vehiculos.Responsable").
		Preload("Usuarios").
		Preload("Creador").
		Order("fecha_inicio DESC").
		Offset(offset).Limit(limit).
		Find(&trabajos).Error
	if err != nil {
		return nil, 0, err
	}
	return trabajos, total, nil
}

// Calendar returns trabajos overlapping the half-open interval
// [desde, hasta): fecha_inicio < hasta AND fecha_fin >= desde.
func (r *trabajoRepository) Calendar(ctx context.Context, desde, hasta time.Time, assignedUserID uint) ([]model.Trabajo, error) {
	q := GetDB(ctx, r.db).Model(&model.Trabajo{}).
		Where("fecha_inicio < ? AND fecha_fin >= ?", hasta, desde)
	if assignedUserID != 0 {
		q = q.Where("EXISTS (SELECT 1 FROM trabajo_usuarios tu WHERE tu.trabajo_id = trabajos.id AND tu.user_id = ?)",
			assignedUserID)
	}

	var trabajos []model.Trabajo
	err := q.Order("fecha_inicio ASC").Find(&trabajos).Error
	return trabajos, err
}

func (r *trabajoRepository) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	return GetDB(ctx, r.db).Model(&model.Trabajo{}).Where("id = ?", id).Updates(fields).Error
}

// ReplaceVehiculos rewrites the assignment set wholesale
// (delete-then-reinsert, not merge).
func (r *trabajoRepository) ReplaceVehiculos(ctx context.Context, trabajoID uint, vehiculos []model.TrabajoVehiculo) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("trabajo_id = ?", trabajoID).Delete(&model.TrabajoVehiculo{}).Error; err != nil {
		return err
	}
	for i := range vehiculos {
		vehiculos[i].ID = 0
		vehiculos[i].TrabajoID = trabajoID
		if err := db.Create(&vehiculos[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *trabajoRepository) ReplaceUsuarios(ctx context.Context, trabajoID uint, userIDs []uint) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("trabajo_id = ?", trabajoID).Delete(&model.TrabajoUsuario{}).Error; err != nil {
		return err
	}
	return r.AddUsuarios(ctx, trabajoID, userIDs)
}

// AddUsuarios inserts personnel rows, ignoring duplicate pairs.
func (r *trabajoRepository) AddUsuarios(ctx context.Context, trabajoID uint, userIDs []uint) error {
	db := GetDB(ctx, r.db)
	for _, userID := range userIDs {
		row := model.TrabajoUsuario{TrabajoID: trabajoID, UserID: userID}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *trabajoRepository) SoftDelete(ctx context.Context, id uint) error {
	return GetDB(ctx, r.db).Delete(&model.Trabajo{}, id).Error
}

// MarkFinalizado performs the terminal transition as a compare-and-set:
// the UPDATE only matches while the row is still programado/activo, so two
// concurrent finalize calls cannot both succeed. Returns false when the
// trabajo was already terminal.
func (r *trabajoRepository) MarkFinalizado(ctx context.Context, id uint, estado string, motivo *string) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Trabajo{}).
		Where("id = ? AND estado IN ?", id, []string{model.EstadoProgramado, model.EstadoActivo}).
		Updates(map[string]interface{}{
			"estado":                         estado,
			"motivo_finalizacion_anticipada": motivo,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *trabajoRepository) SetKilometrosFin(ctx context.Context, trabajoID, vehicleID uint, kilometros int) error {
	return GetDB(ctx, r.db).Model(&model.TrabajoVehiculo{}).
		Where("trabajo_id = ? AND vehicle_id = ?", trabajoID, vehicleID).
		Update("kilometros_fin", kilometros).Error
}

func (r *trabajoRepository) IsVehicleAssigned(ctx context.Context, trabajoID, vehicleID uint) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.TrabajoVehiculo{}).
		Where("trabajo_id = ? AND vehicle_id = ?", trabajoID, vehicleID).
		Count(&count).Error
	return count > 0, err
}

// NextIdentificador allocates the next TRB-<year>-<seq> identifier from the
// per-year counter row. Must run inside the create transaction: the UPDATE
// takes a row lock, serializing concurrent creates for the same year.
func (r *trabajoRepository) NextIdentificador(ctx context.Context, year int) (string, error) {
	db := GetDB(ctx, r.db)

	seq := model.TrabajoSecuencia{Year: year}
	if err := db.Where(model.TrabajoSecuencia{Year: year}).FirstOrCreate(&seq).Error; err != nil {
		return "", err
	}
	err := db.Model(&model.TrabajoSecuencia{}).
		Where("year = ?", year).
		Update("ultimo_numero", gorm.Expr("ultimo_numero + 1")).Error
	if err != nil {
		return "", err
	}
	if err := db.First(&seq, "year = ?", year).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%04d", model.TrabajoIDPrefix, year, seq.UltimoNumero), nil
}
