package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/acadhub/projhub-api/api/swagger"
	"github.com/acadhub/projhub-api/internal/handler"
	"github.com/acadhub/projhub-api/internal/middleware"
	"github.com/acadhub/projhub-api/internal/models"
	"github.com/acadhub/projhub-api/internal/repository"
	"github.com/acadhub/projhub-api/internal/service"
	"github.com/acadhub/projhub-api/pkg/cache"
	"github.com/acadhub/projhub-api/pkg/config"
	"github.com/acadhub/projhub-api/pkg/database"
	"github.com/acadhub/projhub-api/pkg/logger"
	corsmiddleware "github.com/acadhub/projhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acadhub/projhub-api/pkg/middleware/requestid"
)

// @title ProjHub API
// @version 1.0.0
// @description Academic project change-request approval workflow
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// the workflow still functions without the cache/event layer
		logr.Sugar().Warnw("redis unavailable, queue cache and events disabled", "error", err)
	}

	requestRepo := repository.NewRequestRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, auditRepo, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	opts := []service.RequestServiceOption{
		service.WithWorkflowObserver(metricsSvc),
	}
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		eventRepo := repository.NewEventRepository(redisClient, cfg.Requests.EventChannel)
		opts = append(opts,
			service.WithQueueCache(cacheRepo, cfg.Requests.QueueCacheTTL),
			service.WithEventPublisher(eventRepo),
		)
	}
	requestSvc := service.NewRequestService(requestRepo, auditRepo, logr, opts...)
	exportSvc := service.NewExportService(requestRepo)

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
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
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)

	requests := api.Group("/requests", middleware.JWT(authSvc))
	requests.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.Create)
	requests.GET("", requestHandler.List)
	if cfg.Exports.Enabled {
		requests.GET("/export", middleware.RequireRoles(models.RoleAdmin), exportHandler.Export)
	}
	requests.GET("/queue/supervisor", middleware.RequireRoles(models.RoleSupervisor), requestHandler.SupervisorQueue)
	requests.GET("/queue/committee", middleware.RequireRoles(models.RoleCommitteeMember, models.RoleCommitteeHead), requestHandler.CommitteeQueue)
	requests.GET("/:id", requestHandler.Get)
	requests.POST("/:id/supervisor-decision", middleware.RequireRoles(models.RoleSupervisor), requestHandler.SupervisorDecision)
	requests.POST("/:id/committee-decision", middleware.RequireRoles(models.RoleCommitteeMember, models.RoleCommitteeHead), requestHandler.CommitteeDecision)
	requests.POST("/:id/review", middleware.RequireRoles(models.RoleSupervisor, models.RoleCommitteeMember, models.RoleCommitteeHead), requestHandler.Review)
	requests.POST("/:id/cancel", middleware.RequireRoles(models.RoleStudent), requestHandler.Cancel)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
