package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SetupRoutes registers the API on engine.
func (h *Handler) SetupRoutes(engine *echo.Echo, metrics http.Handler) {
	engine.GET("/health", h.HealthCheck)
	engine.GET("/version", h.Version)
	engine.GET("/metrics", echo.WrapHandler(metrics))

	api := engine.Group("/api", echo.WrapMiddleware(LoggerMiddleware))
	// v1 routes
	{
		apiV1 := api.Group("/v1")

		apiV1.GET("/forwards", h.ListForwards)
		apiV1.POST("/forwards", h.CreateForward)
		apiV1.GET("/forwards/:id", h.GetForward)
		apiV1.PUT("/forwards/:id", h.UpdateForward)
		apiV1.DELETE("/forwards/:id", h.DeleteForward)
		apiV1.POST("/forwards/:id/start", h.StartForward)
		apiV1.POST("/forwards/:id/stop", h.StopForward)
		apiV1.GET("/forwards/:id/logs", h.GetForwardLogs)
	}
}
