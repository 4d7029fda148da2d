package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classroster/roster-api/api/swagger"
	"github.com/classroster/roster-api/internal/handler"
	"github.com/classroster/roster-api/internal/middleware"
	"github.com/classroster/roster-api/internal/repository"
	"github.com/classroster/roster-api/internal/service"
	"github.com/classroster/roster-api/pkg/cache"
	"github.com/classroster/roster-api/pkg/config"
	"github.com/classroster/roster-api/pkg/database"
	"github.com/classroster/roster-api/pkg/logger"
	corsmiddleware "github.com/classroster/roster-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classroster/roster-api/pkg/middleware/requestid"
	"github.com/classroster/roster-api/pkg/storage"
)

// @title Class Roster API
// @version 1.0.0
// @description Roster management API with class-list import and enrollment reconciliation
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.CourseTTL, logr)
	activitySvc := service.NewActivityService(activityRepo, cfg.Activity.ListLimit, logr)
	authSvc := service.NewAuthService(instructorRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	importSvc := service.NewImportService(db, enrollmentRepo, courseRepo, activitySvc, metricsSvc, cacheSvc, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, activitySvc, cacheSvc, nil, logr)
	courseSvc := service.NewCourseService(db, courseRepo, enrollmentRepo, instructorRepo, activitySvc, cacheSvc, logr)

	exportArchive, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Warnw("export archive unavailable", "error", err)
		exportArchive = nil
	} else if removed, err := exportArchive.CleanupOlderThan(cfg.Export.Retention); err != nil {
		logr.Sugar().Warnw("export archive cleanup failed", "error", err)
	} else if len(removed) > 0 {
		logr.Sugar().Infow("pruned stale export files", "count", len(removed))
	}
	exportSvc := service.NewExportService(courseRepo, enrollmentRepo, exportArchive, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, importSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, exportSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.POST("/students/import", enrollmentHandler.Import)
		protected.POST("/students", enrollmentHandler.Create)
		protected.GET("/students", enrollmentHandler.List)
		protected.GET("/students/:id", enrollmentHandler.Get)
		protected.PUT("/students/:id", enrollmentHandler.Update)
		protected.DELETE("/students/:id", enrollmentHandler.Delete)
		protected.POST("/students/:id/restore", enrollmentHandler.Restore)
		protected.DELETE("/students/:id/force", enrollmentHandler.ForceDelete)

		protected.GET("/courses", courseHandler.List)
		protected.GET("/courses/:code", courseHandler.Get)
		protected.DELETE("/courses/:code", courseHandler.Delete)
		protected.GET("/courses/:code/export", courseHandler.Export)

		protected.GET("/activity", activityHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
