package server

import (
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo, proxyLimiter *rate.Limiter) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/health/ai", routes.GetModelMetricsHandler)

	// Image proxy route
	e.GET("/proxy-image", routes.ProxyImageHandler, middleware.RateLimit(proxyLimiter))

	// Multiplayer demo relay
	e.GET("/ws/lobby", func(c echo.Context) error {
		c.(*middleware.AppContext).App.Lobby.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	apiRoutes := e.Group("/api")
	apiRoutes.POST("/ai", routes.GenerateRelationHandler)

	// Claim routes
	apiRoutes.GET("/claims", routes.GetClaimsHandler)
	apiRoutes.POST("/claims/refresh", routes.RefreshClaimsHandler)

	// Globe data routes
	apiRoutes.GET("/globe/activities", routes.GetActivitiesHandler)
	apiRoutes.GET("/globe/cities", routes.GetCitiesHandler)
	apiRoutes.GET("/globe/venues", routes.GetVenuesHandler)
	apiRoutes.GET("/globe/arcs", routes.GetArcsHandler)
	apiRoutes.GET("/globe/clusters", routes.GetClustersHandler)
	apiRoutes.GET("/globe/polygons", routes.GetPolygonsHandler)
	apiRoutes.GET("/globe/legend", routes.GetLegendHandler)

	// Session routes
	apiRoutes.POST("/sessions", routes.CreateSessionHandler)
	apiRoutes.DELETE("/sessions/:id", routes.DeleteSessionHandler)

	sessionRoutes := apiRoutes.Group("/sessions/:id", middleware.SessionMiddleware)
	sessionRoutes.GET("", routes.GetSessionHandler)
	sessionRoutes.GET("/graph", routes.GetGraphHandler)
	sessionRoutes.POST("/select", routes.SelectNodeHandler)
	sessionRoutes.POST("/relations", routes.AddRelationHandler)
	sessionRoutes.POST("/demo", routes.DemoHandler)
	sessionRoutes.POST("/fullscreen", routes.FullscreenHandler)
	sessionRoutes.POST("/input", routes.InputHandler)
	sessionRoutes.PATCH("/render", routes.SetRenderHandler)
	sessionRoutes.GET("/frame", routes.GetFrameHandler)
	sessionRoutes.GET("/frames", routes.StreamFramesHandler)

	// Claim flow routes
	sessionRoutes.GET("/claim", routes.GetClaimHandler)
	sessionRoutes.POST("/claim", routes.OpenClaimHandler)
	sessionRoutes.PATCH("/claim", routes.SetClaimImageHandler)
	sessionRoutes.DELETE("/claim", routes.CancelClaimHandler)
	sessionRoutes.POST("/claim/outcome", routes.ClaimOutcomeHandler)
}
