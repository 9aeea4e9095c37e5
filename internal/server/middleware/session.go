package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/session"
)

// SessionMiddleware resolves the :id path parameter to a live session.
func SessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cc := c.(*AppContext)
		s, err := cc.App.Sessions.Get(c.Param("id"))
		if errors.Is(err, session.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
		}
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		}
		s.Touch()
		cc.Session = s
		return next(cc)
	}
}
