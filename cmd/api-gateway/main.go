package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uce-api/api/swagger"
	"github.com/noah-isme/uce-api/internal/handler"
	"github.com/noah-isme/uce-api/internal/middleware"
	"github.com/noah-isme/uce-api/internal/models"
	"github.com/noah-isme/uce-api/internal/repository"
	"github.com/noah-isme/uce-api/internal/service"
	"github.com/noah-isme/uce-api/pkg/cache"
	"github.com/noah-isme/uce-api/pkg/config"
	"github.com/noah-isme/uce-api/pkg/database"
	"github.com/noah-isme/uce-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uce-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uce-api/pkg/middleware/requestid"
)

// @title UCE Proposal API
// @version 0.1.0
// @description University community-extension proposal and approval workflow service
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	seq, err := service.NewApprovalSequence(cfg.Approval.Sequence)
	if err != nil {
		logr.Sugar().Fatalw("invalid approval sequence", "error", err)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	proposalRepo := repository.NewProposalRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "uce-api",
	})

	approvalOpts := []service.ApprovalServiceOption{service.WithApprovalMetrics(metricsSvc)}
	proposalSvc := service.NewProposalService(proposalRepo, userRepo, seq, validate, logr)
	proposalSvc.SetActivityLookup(activityRepo)

	if cfg.Worklist.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, worklist cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			approvalOpts = append(approvalOpts, service.WithWorklistCache(cacheRepo, cfg.Worklist.CacheTTL))
			proposalSvc.SetWorklistCache(cacheRepo)
		}
	}

	approvalSvc := service.NewApprovalService(proposalRepo, userRepo, seq, logr, approvalOpts...)
	activitySvc := service.NewActivityService(activityRepo, logr)
	referenceSvc := service.NewReferenceService(referenceRepo)

	authHandler := handler.NewAuthHandler(authSvc)
	proposalHandler := handler.NewProposalHandler(proposalSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	referenceHandler := handler.NewReferenceHandler(referenceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	approverRoles := seq.Roles()

	proposals := api.Group("/proposals", middleware.JWT(authSvc))
	{
		proposals.POST("", middleware.RequireRoles(models.RoleDepartment), proposalHandler.Create)
		proposals.GET("", proposalHandler.List)
		proposals.GET("/:id", proposalHandler.Get)
		proposals.POST("/:id/resubmit", middleware.RequireRoles(models.RoleDepartment), proposalHandler.Resubmit)
		proposals.POST("/:id/approve", middleware.RequireRoles(approverRoles...), approvalHandler.Approve)
		proposals.POST("/:id/return", middleware.RequireRoles(approverRoles...), approvalHandler.Return)
	}

	approvals := api.Group("/approvals", middleware.JWT(authSvc))
	{
		approvals.GET("/worklist", middleware.RequireRoles(approverRoles...), approvalHandler.Worklist)
	}

	activities := api.Group("/activities", middleware.JWT(authSvc))
	{
		activities.GET("", activityHandler.List)
		activities.GET("/:id", activityHandler.Get)
		activities.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin), activityHandler.UpdateStatus)
	}

	reference := api.Group("", middleware.JWT(authSvc))
	{
		reference.GET("/departments", referenceHandler.Departments)
		reference.GET("/partner-communities", referenceHandler.PartnerCommunities)
		reference.GET("/banner-programs", referenceHandler.BannerPrograms)
	}

	metrics := api.Group("/metrics", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		metrics.GET("/summary", metricsHandler.Summary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "approval_sequence", cfg.Approval.Sequence)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
