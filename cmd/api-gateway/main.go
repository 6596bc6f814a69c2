package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edustack/institute-api/api/swagger"
	"github.com/edustack/institute-api/internal/handler"
	"github.com/edustack/institute-api/internal/middleware"
	"github.com/edustack/institute-api/internal/models"
	"github.com/edustack/institute-api/internal/repository"
	"github.com/edustack/institute-api/internal/service"
	"github.com/edustack/institute-api/pkg/cache"
	"github.com/edustack/institute-api/pkg/config"
	"github.com/edustack/institute-api/pkg/database"
	"github.com/edustack/institute-api/pkg/jobs"
	"github.com/edustack/institute-api/pkg/logger"
	corsmiddleware "github.com/edustack/institute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edustack/institute-api/pkg/middleware/requestid"
	"github.com/edustack/institute-api/pkg/storage"
)

// @title Institute API
// @version 1.0.0
// @description Training institute management: courses, batches, admissions, enrollments, attendance and payments.
// @BasePath /api/v1
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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Attendance.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Attendance.CacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Attendance.CacheTTL, logr, false)
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	paymentPlanRepo := repository.NewPaymentPlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "institute-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, courseRepo, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, courseRepo, batchRepo, validate, logr)
	admissionSvc := service.NewAdmissionService(applicationRepo, batchRepo, cfg.Admission.EnforceCapacity, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, batchRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, enrollmentRepo, batchRepo, cacheSvc, cfg.Attendance.FallbackHours, cfg.Attendance.CacheTTL, validate, logr)
	paymentSvc := service.NewPaymentService(paymentPlanRepo, paymentRepo, enrollmentRepo, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, courseRepo, validate, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	batchHandler := handler.NewBatchHandler(batchSvc, enrollmentSvc, attendanceSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc, admissionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)

	protected := api.Group("", middleware.JWT(authSvc))
	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/change-password", authHandler.ChangePassword)
	protected.GET("/auth/me", authHandler.Me)

	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff)

	protected.GET("/users", admin, userHandler.List)
	protected.GET("/users/:id", admin, userHandler.Get)
	protected.POST("/users", admin, userHandler.Create)
	protected.PUT("/users/:id", admin, userHandler.Update)
	protected.DELETE("/users/:id", admin, userHandler.Delete)

	protected.GET("/courses", courseHandler.List)
	protected.GET("/courses/:id", courseHandler.Get)
	protected.POST("/courses", admin, courseHandler.Create)
	protected.PUT("/courses/:id", admin, courseHandler.Update)
	protected.DELETE("/courses/:id", admin, courseHandler.Delete)

	protected.GET("/batches", batchHandler.List)
	protected.GET("/batches/next-number", staff, batchHandler.NextNumber)
	protected.GET("/batches/:id", batchHandler.Get)
	protected.POST("/batches", admin, batchHandler.Create)
	protected.PUT("/batches/:id", admin, batchHandler.Update)
	protected.DELETE("/batches/:id", admin, batchHandler.Delete)
	protected.GET("/batches/:id/roster", staff, batchHandler.Roster)
	protected.GET("/batches/:id/attendance-report", staff, batchHandler.Report)

	protected.GET("/applications", staff, applicationHandler.List)
	protected.GET("/applications/:id", staff, applicationHandler.Get)
	protected.POST("/applications", applicationHandler.Submit)
	protected.PUT("/applications/:id/decision", admin, middleware.Audit(userRepo, "DECIDE", "application"), applicationHandler.Decide)

	protected.GET("/enrollments", staff, enrollmentHandler.List)
	protected.GET("/enrollments/:id", staff, enrollmentHandler.Get)
	protected.POST("/enrollments", admin, enrollmentHandler.Create)
	protected.PUT("/enrollments/:id/status", admin, middleware.Audit(userRepo, "UPDATE_STATUS", "enrollment"), enrollmentHandler.UpdateStatus)
	protected.GET("/enrollments/:id/payment-plan", staff, paymentHandler.GetPlanByEnrollment)

	protected.GET("/attendance", staff, attendanceHandler.List)
	protected.POST("/attendance", staff, attendanceHandler.Mark)
	protected.POST("/attendance/bulk", staff, attendanceHandler.BulkMark)
	staffOrSelf := middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleStaff), "SELF")
	protected.GET("/attendance/summary/:userId", staffOrSelf, attendanceHandler.Summary)

	protected.POST("/payment-plans", admin, paymentHandler.CreatePlan)
	protected.GET("/payment-plans/:id", staff, paymentHandler.GetPlan)
	protected.DELETE("/payment-plans/:id", admin, paymentHandler.DeletePlan)

	protected.GET("/payments", staff, paymentHandler.List)
	protected.GET("/payments/:id", staff, paymentHandler.Get)
	protected.POST("/payments", staff, paymentHandler.Create)
	protected.PUT("/payments/:id/status", admin, middleware.Audit(userRepo, "UPDATE_STATUS", "payment"), paymentHandler.UpdateStatus)
	protected.DELETE("/payments/:id", admin, paymentHandler.Delete)

	protected.GET("/schedules", scheduleHandler.List)
	protected.GET("/schedules/:id", scheduleHandler.Get)
	protected.POST("/schedules", admin, scheduleHandler.Create)
	protected.DELETE("/schedules/:id", admin, scheduleHandler.Delete)

	r.GET("/metrics", metricsHandler.Prometheus)
	protected.GET("/system/metrics", admin, metricsHandler.Health)

	var queue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(attendanceRepo, enrollmentRepo, paymentRepo, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, nil, nil)

		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
		queue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)

		reportSvc := service.NewReportService(reportRepo, batchRepo, queue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:  cfg.Exports.SignedURLTTL,
			MaxRetries: cfg.Exports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)

		reportHandler := handler.NewReportHandler(reportSvc)
		protected.POST("/reports/generate", staff, reportHandler.GenerateReport)
		protected.GET("/reports/status/:id", staff, reportHandler.ReportStatus)
		api.GET("/export/:token", reportHandler.DownloadReport)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	if queue != nil {
		queue.Stop()
	}
}
