package routes

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/pkg/claims"
)

type claimsResponse struct {
	Count       int            `json:"count"`
	RefreshedAt time.Time      `json:"refreshedAt"`
	Claims      []claims.Entry `json:"claims"`
}

func listClaims(cache *claims.Cache) claimsResponse {
	res := claimsResponse{Claims: []claims.Entry{}}
	if cache == nil {
		return res
	}
	for _, e := range cache.Snapshot() {
		res.Claims = append(res.Claims, e)
	}
	slices.SortFunc(res.Claims, func(a, b claims.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	res.Count = len(res.Claims)
	res.RefreshedAt = cache.RefreshedAt()
	return res
}

// GetClaimsHandler lists the names claimed on the ledger as of the last
// refresh.
func GetClaimsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, listClaims(c.(*middleware.AppContext).App.Claims))
}

// RefreshClaimsHandler rescans the ledger and returns the new set.
func RefreshClaimsHandler(c echo.Context) error {
	cache := c.(*middleware.AppContext).App.Claims
	if cache != nil {
		if err := cache.Refresh(c.Request().Context()); err != nil {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{"error": "Claims refresh cancelled"})
		}
	}
	return c.JSON(http.StatusOK, listClaims(cache))
}
