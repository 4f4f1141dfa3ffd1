package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/infra/config"
	"github.com/nexosupport/access-service/internal/infra/telemetry"
	"github.com/nexosupport/access-service/internal/transport/http/handlers"
	"github.com/nexosupport/access-service/internal/transport/http/middleware"
	"github.com/nexosupport/access-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Contexts    *usecase.ContextService
	Roles       *usecase.RoleService
	Assignments *usecase.AssignmentService
	Access      *usecase.AccessService
	Audit       *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Telemetry *telemetry.Provider
	Metrics   *middleware.HTTPMetrics
	Services  ServiceSet
	Database  DatabaseChecker
	Cache     CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	roleView := middleware.RequireCapability(deps.Services.Access, deps.Services.Contexts, usecase.CapRoleView)
	roleManage := middleware.RequireCapability(deps.Services.Access, deps.Services.Contexts, usecase.CapRoleManage)
	roleAssign := middleware.RequireCapability(deps.Services.Access, deps.Services.Contexts, usecase.CapRoleAssign)
	auditView := middleware.RequireCapability(deps.Services.Access, deps.Services.Contexts, usecase.CapAuditView)

	api := r.Group("/api/v1")
	{
		roleHandler := handlers.NewRoleHandler(deps.Services.Roles, deps.Services.Contexts)
		roleHandler.RegisterRoutes(api.Group("/roles"), roleView, roleManage)

		contextGroup := api.Group("/contexts")
		contextHandler := handlers.NewContextHandler(deps.Services.Contexts)
		contextHandler.RegisterRoutes(contextGroup, roleView, roleManage)

		assignmentHandler := handlers.NewAssignmentHandler(deps.Services.Assignments, deps.Services.Contexts)
		assignmentHandler.RegisterRoutes(contextGroup, roleAssign)

		// Capability checks carry no enforcement middleware: callers ask on
		// behalf of arbitrary users and denial is already fail-closed.
		accessHandler := handlers.NewAccessHandler(deps.Services.Access, deps.Services.Contexts, deps.Telemetry)
		accessHandler.RegisterRoutes(api.Group("/access"))

		auditHandler := handlers.NewAuditHandler(deps.Services.Audit)
		auditHandler.RegisterRoutes(api.Group("/audit"), auditView)
	}

	return r
}
