package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"backend/internal/authz"
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/storage"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testPassword = "Password1!"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.SetupJoinTable(&model.User{}, "Roles", &model.UserRole{}))
	require.NoError(t, db.SetupJoinTable(&model.Trabajo{}, "Usuarios", &model.TrabajoUsuario{}))
	require.NoError(t, database.Migrate(db))

	for _, name := range model.AllRoles {
		require.NoError(t, db.Create(&model.Role{Nombre: name}).Error)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		JWTAccessSecret:    "test-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		BcryptCost:         bcrypt.MinCost,
		LockoutMaxAttempts: 5,
		LockoutWindow:      30 * time.Minute,
	}
}

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	store    *memStore
	users    repository.UserRepository
	tokens   repository.TokenRepository
	vehicles repository.VehicleRepository
	images   repository.ImageRepository
	trabajos repository.TrabajoRepository
	txm      repository.TransactionManager

	auth        AuthService
	userSvc     UserService
	vehicleSvc  VehicleService
	trabajoSvc  TrabajoService
	userCounter int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	log := zap.NewNop()
	store := newMemStore()

	env := &testEnv{
		db:       db,
		cfg:      cfg,
		store:    store,
		users:    repository.NewUserRepository(db),
		tokens:   repository.NewTokenRepository(db),
		vehicles: repository.NewVehicleRepository(db),
		images:   repository.NewImageRepository(db),
		trabajos: repository.NewTrabajoRepository(db),
		txm:      repository.NewTransactionManager(db),
	}
	env.auth = NewAuthService(env.users, env.tokens, env.txm, cfg, log)
	env.userSvc = NewUserService(env.users, env.tokens, env.txm, cfg.BcryptCost, log)
	env.vehicleSvc = NewVehicleService(env.vehicles, env.images, store, log)
	env.trabajoSvc = NewTrabajoService(env.trabajos, env.vehicles, env.users, env.images, store, env.txm, log)
	return env
}

// createUser inserts an active user with the given roles and the shared test
// password.
func (e *testEnv) createUser(t *testing.T, username string, roles ...string) *model.User {
	t.Helper()
	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	e.userCounter++
	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Nombre:       "Test",
		Apellidos:    "User",
		DNI:          fmt.Sprintf("%08dZ", e.userCounter),
		Activo:       true,
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	if len(roles) > 0 {
		require.NoError(t, e.users.ReplaceRoles(context.Background(), user.ID, roles, user.ID))
	}
	loaded, err := e.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	return loaded
}

func (e *testEnv) createVehicle(t *testing.T, matricula string, kilometros int) *model.Vehicle {
	t.Helper()
	vehicle := &model.Vehicle{
		Matricula:          matricula,
		Alias:              "Ambulancia " + matricula,
		KilometrosActuales: kilometros,
	}
	require.NoError(t, e.vehicles.Create(context.Background(), vehicle))
	return vehicle
}

func identFor(user *model.User) authz.Identity {
	return authz.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    user.RoleNames(),
	}
}

// createTrabajo schedules a basic trabajo with one vehicle and responsable.
func (e *testEnv) createTrabajo(t *testing.T, caller *model.User, vehicle *model.Vehicle, responsable *model.User, inicio, fin time.Time) *model.Trabajo {
	t.Helper()
	trabajo, err := e.trabajoSvc.Create(context.Background(), identFor(caller), CreateTrabajoInput{
		Nombre:      "Traslado de prueba",
		Tipo:        model.TipoTraslado,
		FechaInicio: inicio,
		FechaFin:    fin,
		Vehiculos: []TrabajoVehiculoInput{
			{VehicleID: vehicle.ID, ResponsableUserID: responsable.ID},
		},
	})
	require.NoError(t, err)
	return trabajo
}

// uploadAllEvidencia uploads the five required categories for one vehicle.
func (e *testEnv) uploadAllEvidencia(t *testing.T, caller *model.User, trabajoID, vehicleID uint) {
	t.Helper()
	for _, tipo := range model.ImagenTiposRequeridos {
		_, err := e.trabajoSvc.UploadEvidencia(context.Background(), identFor(caller), trabajoID, vehicleID, UploadImageInput{
			Tipo:      tipo,
			Data:      []byte("jpeg-bytes"),
			Extension: ".jpg",
		})
		require.NoError(t, err)
	}
}

// memStore is an in-memory FileStore for tests.
type memStore struct {
	files   map[string][]byte
	deleted []string
	counter int
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (s *memStore) Save(data []byte, ext string) (storage.StoredFile, error) {
	s.counter++
	name := fmt.Sprintf("file-%d%s", s.counter, ext)
	s.files[name] = data
	return storage.StoredFile{
		Name: name,
		URL:  "/uploads/" + name,
		Size: int64(len(data)),
	}, nil
}

func (s *memStore) Delete(url string) error {
	name := url[len("/uploads/"):]
	delete(s.files, name)
	s.deleted = append(s.deleted, url)
	return nil
}
