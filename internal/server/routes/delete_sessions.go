package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
)

// DeleteSessionHandler unmounts a session and stops its render tasks.
func DeleteSessionHandler(c echo.Context) error {
	if err := c.(*middleware.AppContext).App.Sessions.Close(c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func CancelClaimHandler(c echo.Context) error {
	if err := c.(*middleware.AppContext).Session.Controller.CancelClaim(); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
