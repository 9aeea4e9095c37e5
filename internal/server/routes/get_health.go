package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/pkg/ai"
)

// GetModelMetricsHandler reports the token usage of every model since the
// last usage report.
func GetModelMetricsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	out := make(map[string]ai.ModelMetrics, len(app.Models))
	for name, model := range app.Models {
		out[name] = model.GetMetrics()
	}
	return c.JSON(http.StatusOK, out)
}
