package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/session"
	"github.com/portfolio-globe/backend/pkg/interaction"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/scene"
)

var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{scene.ErrUnknownNode, http.StatusNotFound, "Node not found"},
	{scene.ErrEmptyID, http.StatusBadRequest, "Node id must not be empty"},
	{scene.ErrNotEmpty, http.StatusConflict, "Scene is not empty"},
	{interaction.ErrBusy, http.StatusConflict, "A relation is already being added"},
	{interaction.ErrEmptyRelation, http.StatusBadRequest, "Relation must not be empty"},
	{interaction.ErrNoSelection, http.StatusBadRequest, "No node selected"},
	{interaction.ErrNoPendingClaim, http.StatusNotFound, "No pending claim"},
	{interaction.ErrAlreadyClaimed, http.StatusConflict, "Node is already claimed"},
	{interaction.ErrClaimPending, http.StatusConflict, "Another claim is pending"},
	{session.ErrNotFound, http.StatusNotFound, "Session not found"},
	{session.ErrLimit, http.StatusTooManyRequests, "Too many sessions"},
}

// errorResponse maps a domain error onto a status and a fixed message so
// raw errors never reach the client.
func errorResponse(c echo.Context, err error) error {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return c.JSON(e.status, map[string]string{"error": e.message})
		}
	}
	logger.Error("[Server] request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

func invalidBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
}
