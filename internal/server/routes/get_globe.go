package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/style"
)

// DefaultClusterRadius is the flat map clustering distance in degrees.
const DefaultClusterRadius = 5.0

func GetActivitiesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, c.(*middleware.AppContext).App.Activities)
}

func GetCitiesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, c.(*middleware.AppContext).App.Cities)
}

func GetVenuesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, c.(*middleware.AppContext).App.Venues)
}

func GetArcsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, achievements.Arcs(c.(*middleware.AppContext).App.Cities))
}

// GetClustersHandler groups venues for the flat map. ?radius= overrides the
// clustering distance.
func GetClustersHandler(c echo.Context) error {
	radius := DefaultClusterRadius
	if raw := c.QueryParam("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid radius"})
		}
		radius = r
	}
	return c.JSON(http.StatusOK, achievements.ClusterVenues(c.(*middleware.AppContext).App.Venues, radius))
}

func GetPolygonsHandler(c echo.Context) error {
	polys := c.(*middleware.AppContext).App.Polygons
	if polys == nil {
		polys = []achievements.Polygon{}
	}
	return c.JSON(http.StatusOK, polys)
}

func GetLegendHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, style.ImportanceLegend())
}
