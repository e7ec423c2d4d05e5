package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muandane/ziria/internal/handlers"
	"github.com/muandane/ziria/internal/middleware"
)

type Router struct {
	engine *gin.Engine
	logger *slog.Logger
}

// Handlers groups everything the route table needs.
type Handlers struct {
	Render *handlers.RenderHandler
	Health *handlers.HealthHandler
	Ready  *handlers.ReadyHandler
	Stats  *handlers.StatsHandler
	Flush  *handlers.FlushHandler
}

func NewRouter(logger *slog.Logger) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())
	return &Router{
		engine: engine,
		logger: logger,
	}
}

// Setup registers every route and wraps the engine with the logging and
// metrics middleware. Admin routes are only registered when adminSecret is
// set.
func (r *Router) Setup(h Handlers, adminSecret string) http.Handler {
	metricsMiddleware := middleware.NewMetricsMiddleware()

	health := gin.WrapH(h.Health)
	r.engine.GET("/", health)
	r.engine.GET("/health", health)
	r.engine.GET("/ready", gin.WrapH(h.Ready))
	r.engine.GET("/metrics", gin.WrapH(metricsMiddleware))
	r.engine.GET("/stats", gin.WrapH(h.Stats))

	r.engine.GET("/avatar/:token/:size/:helm", h.Render.Avatar)
	r.engine.GET("/skin/:token", h.Render.Skin)
	r.engine.GET("/skin/:token/:size", h.Render.Skin)

	if adminSecret != "" && h.Flush != nil {
		admin := r.engine.Group("/admin")
		admin.POST("/flush", gin.WrapH(middleware.Chain(
			h.Flush,
			middleware.WithAdminSecret(adminSecret, r.logger),
		)))
	}

	return middleware.Chain(
		r.engine,
		middleware.WithLogging(r.logger, "/", "/health", "/ready", "/metrics"),
		metricsMiddleware.WithMetrics,
	)
}
