package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoswagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/homespot/identity-service/docs"
	"github.com/homespot/identity-service/internal/api/handler"
	"github.com/homespot/identity-service/internal/api/middleware"
	"github.com/homespot/identity-service/internal/core/domain"
	"github.com/homespot/identity-service/internal/core/ports"
	"github.com/homespot/identity-service/internal/core/service"
	"github.com/homespot/identity-service/internal/infrastructure/config"
	mongostore "github.com/homespot/identity-service/internal/infrastructure/db/mongo"
	redisstore "github.com/homespot/identity-service/internal/infrastructure/db/redis"
)

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(
	cfg *config.Config,
	db *mongo.Database,
	rdb *redis.Client,
	issuer ports.TokenIssuer,
	notifications handler.NotificationQueue,
	log zerolog.Logger,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("identity"))

	// --- Dependencies ---
	accountRepo := mongostore.NewAccountRepository(db, cfg.JWT.Secret)
	sessionRepo := mongostore.NewSessionRepository(db)
	consumedStore := redisstore.NewConsumedTokenStore(rdb)

	lockout := domain.NewLockoutPolicy(cfg.Lockout.Threshold, cfg.Lockout.Cooldown)
	authService := service.NewAuthService(accountRepo, sessionRepo, issuer, lockout, log)
	accountService := service.NewAccountService(accountRepo, consumedStore, cfg.ConfirmRedirectURL, log)

	authHandler := handler.NewAuthHandler(authService)
	accountHandler := handler.NewAccountHandler(accountService, notifications, cfg.PublicBaseURL)
	authMiddleware := middleware.Auth(cfg.JWT.Secret, sessionRepo)

	// --- Auth routes ---
	e.POST("/auth/login", authHandler.Login)
	e.POST("/auth/logout", authHandler.Logout)
	e.POST("/auth/register", accountHandler.Register)
	e.GET("/auth/confirm-email", accountHandler.ConfirmEmail)
	e.POST("/auth/forgot-password", accountHandler.ForgotPassword)
	e.POST("/auth/reset-password", accountHandler.ResetPassword)

	e.GET("/auth/sessions", authHandler.CurrentSession,
		authMiddleware, middleware.RBAC(domain.RoleOwner, domain.RoleCustomer))

	// --- Observability ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoswagger.WrapHandler)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(db, rdb)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	return e
}
