package database

import (
	"fmt"
	"time"

	"backend/internal/config"
	"backend/internal/model"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// New builds the gorm handle without touching the network
// (DisableAutomaticPing), so the HTTP server can start listening before the
// store is reachable. WaitReady performs the actual connect.
func New(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, err
	}

	// user_roles carries assigned_by, so the join table needs its own model.
	if err := db.SetupJoinTable(&model.User{}, "Roles", &model.UserRole{}); err != nil {
		return nil, err
	}
	if err := db.SetupJoinTable(&model.Trabajo{}, "Usuarios", &model.TrabajoUsuario{}); err != nil {
		return nil, err
	}

	return db, nil
}

// WaitReady pings the store with a bounded fixed-backoff retry loop, then
// migrates and seeds. An error after the last attempt is fatal to the caller.
func WaitReady(db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		if err = sqlDB.Ping(); err == nil {
			break
		}
		if attempt >= cfg.DBConnectAttempts {
			return fmt.Errorf("database unreachable after %d attempts: %w", attempt, err)
		}
		log.Warn("database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.DBConnectAttempts),
			zap.Error(err),
		)
		time.Sleep(cfg.DBConnectDelay)
	}
	log.Info("database connection established")

	if err := Migrate(db); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return Seed(db, cfg, log)
}

// Migrate creates or updates the schema for every model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Role{},
		&model.UserRole{},
		&model.RefreshToken{},
		&model.LoginAttempt{},
		&model.Vehicle{},
		&model.VehicleImage{},
		&model.Trabajo{},
		&model.TrabajoVehiculo{},
		&model.TrabajoUsuario{},
		&model.TrabajoSecuencia{},
	)
}

// Seed inserts the fixed role vocabulary and, when configured, a bootstrap
// administrator account.
func Seed(db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	descriptions := map[string]string{
		model.RolAdministrador: "Acceso completo al sistema",
		model.RolGestor:        "Gestión de trabajos, vehículos y personal",
		model.RolTecnico:       "Técnico de emergencias sanitarias",
		model.RolEnfermero:     "Personal de enfermería",
		model.RolMedico:        "Personal médico",
	}
	for _, name := range model.AllRoles {
		desc := descriptions[name]
		role := model.Role{Nombre: name, Descripcion: &desc}
		if err := db.Where(model.Role{Nombre: name}).FirstOrCreate(&role).Error; err != nil {
			return err
		}
	}

	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&model.User{}).Where("username = ?", cfg.AdminUsername).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), cfg.BcryptCost)
	if err != nil {
		return err
	}
	var adminRole model.Role
	if err := db.First(&adminRole, "nombre = ?", model.RolAdministrador).Error; err != nil {
		return err
	}
	admin := model.User{
		Username:     cfg.AdminUsername,
		PasswordHash: string(hash),
		Nombre:       "Admin",
		Apellidos:    "Sistema",
		DNI:          "00000000A",
		Activo:       true,
		Roles:        []model.Role{adminRole},
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	log.Info("bootstrap administrator created", zap.String("username", cfg.AdminUsername))
	return nil
}
