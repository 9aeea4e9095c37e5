package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
)

// SetClaimImageHandler replaces the image reference of the pending claim.
func SetClaimImageHandler(c echo.Context) error {
	type setClaimImageBody struct {
		ImageReference string `json:"imageReference" validate:"required"`
	}

	data := new(setClaimImageBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidBody(c)
	}

	claim, err := c.(*middleware.AppContext).Session.Controller.SetClaimImage(data.ImageReference)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, claim)
}

// SetRenderHandler pauses or resumes frame production.
func SetRenderHandler(c echo.Context) error {
	type setRenderBody struct {
		Paused bool `json:"paused"`
	}

	type renderResponse struct {
		Paused bool   `json:"paused"`
		Frames uint64 `json:"frames"`
	}

	data := new(setRenderBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}

	d := c.(*middleware.AppContext).Session.Driver()
	if data.Paused {
		d.Pause()
	} else {
		d.Resume()
	}
	return c.JSON(http.StatusOK, renderResponse{Paused: d.Paused(), Frames: d.Frames()})
}
