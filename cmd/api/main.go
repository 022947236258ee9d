package main

import (
	"sync/atomic"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/storage"
	"backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Gestión de Flota de Ambulancias API
// @version         1.0
// @description     Back office for ambulance fleet operations: jobs, vehicles, staff and photo evidence.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Environment variables may come from the process itself.
	_ = godotenv.Load("configs/.env")

	cfg := config.Load()

	log, err := logger.New(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	db, err := database.New(cfg.DSN())
	if err != nil {
		log.Fatal("database handle creation failed", zap.Error(err))
	}

	// The server listens before the store is reachable; dbReady flips once
	// the background connect, migrate and seed finish.
	var dbReady atomic.Bool
	go func() {
		if err := database.WaitReady(db, cfg, log); err != nil {
			log.Fatal("database initialization failed", zap.Error(err))
		}
		dbReady.Store(true)
	}()

	store, err := storage.NewLocalStore(cfg.UploadsDir)
	if err != nil {
		log.Fatal("uploads directory setup failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}

	// Repository -> Service -> Handler
	txm := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	imageRepo := repository.NewImageRepository(db)
	trabajoRepo := repository.NewTrabajoRepository(db)

	authService := service.NewAuthService(userRepo, tokenRepo, txm, cfg, log)
	userService := service.NewUserService(userRepo, tokenRepo, txm, cfg.BcryptCost, log)
	vehicleService := service.NewVehicleService(vehicleRepo, imageRepo, store, log)
	trabajoService := service.NewTrabajoService(trabajoRepo, vehicleRepo, userRepo, imageRepo, store, txm, log)

	limiter := middleware.NewLoginRateLimiter(redisClient, log, cfg.LoginRateMax, cfg.LoginRateWin)
	authMW := middleware.Authenticate(userRepo, cfg.JWTAccessSecret)

	authHandler := handler.NewAuthHandler(authService, limiter)
	userHandler := handler.NewUserHandler(userService)
	vehicleHandler := handler.NewVehicleHandler(vehicleService, cfg.MaxUploadSize)
	trabajoHandler := handler.NewTrabajoHandler(trabajoService, cfg.MaxUploadSize)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.Static("/uploads", cfg.UploadsDir)

	router.GET("/health", func(c *gin.Context) {
		status := "OK"
		code := 200
		if !dbReady.Load() {
			status = "DEGRADED"
			code = 503
		}
		c.JSON(code, gin.H{"status": status, "database": dbReady.Load()})
	})

	api := router.Group("/api/" + cfg.APIVersion)
	authHandler.RegisterRoutes(api, authMW)
	userHandler.RegisterRoutes(api, authMW)
	vehicleHandler.RegisterRoutes(api, authMW)
	trabajoHandler.RegisterRoutes(api, authMW)

	log.Info("server listening", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}
