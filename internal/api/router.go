package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/carddemo/auth-gateway/docs"
	"github.com/carddemo/auth-gateway/internal/api/handler"
	"github.com/carddemo/auth-gateway/internal/api/middleware"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

// Deps holds everything the router needs; main builds it.
type Deps struct {
	Sessions ports.SessionService
	Tokens   ports.TokenValidator
	Authz    ports.AuthorizationService
	// Activity may be nil, in which case TTLs only move on explicit refresh.
	Activity ports.ActivityRecorder
	Checks   []handler.DependencyCheck
	LoginURL string
	// ClientPolicy is returned to clients on login.
	ClientPolicy handler.ClientPolicy
	Log          zerolog.Logger
	// Registry overrides the default Prometheus registry, mainly for tests.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
//
// @title                       CardDemo auth gateway
// @version                     1.0
// @description                 Authentication and session lifecycle for CardDemo.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "carddemo_auth",
		Registerer: registerer,
		Skipper:    opsRoute,
	}))
	e.Use(middleware.Authenticate(deps.Tokens, deps.Activity, deps.Log))

	requireAuth := middleware.RequireAuthenticated(deps.LoginURL)

	// --- Session routes ---
	sessions := handler.NewSessionHandler(deps.Sessions, deps.ClientPolicy)
	v1 := e.Group("/v1")
	v1.POST("/session", sessions.Login)
	v1.DELETE("/session", sessions.Terminate)

	s := v1.Group("/session", requireAuth)
	s.GET("", sessions.Validate)
	s.POST("/refresh", sessions.Refresh)
	s.PUT("/data/:key", sessions.PutData)
	s.GET("/data/:key", sessions.GetData)
	s.DELETE("/data/:key", sessions.DeleteData)
	s.POST("/navigation", sessions.RecordNavigation)
	s.PUT("/error", sessions.SetError)
	s.DELETE("/error", sessions.ClearError)

	// --- Authorization ---
	access := handler.NewAccessHandler(deps.Authz)
	v1.GET("/access/:kind/:id", access.Check, requireAuth)

	admin := handler.NewAdminHandler(deps.Sessions)
	a := v1.Group("/admin", middleware.RequireRole(deps.Authz, domain.RoleAdmin))
	a.GET("/sessions/:id", admin.InspectSession)

	// --- Ops (no auth required) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewReadinessHandler(deps.Checks...).Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func opsRoute(c echo.Context) bool {
	switch c.Path() {
	case "/health", "/health/ready", "/metrics", "/swagger/*":
		return true
	}
	return false
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		Skipper:      opsRoute,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			sc := middleware.CurrentSecurityContext(c)
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("sid", sc.SessionID).
				Msg("request")
			return nil
		},
	})
}
