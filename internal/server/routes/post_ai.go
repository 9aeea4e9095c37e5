package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/logger"
)

// GenerateRelationHandler asks the remote provider for a word related to
// source and reports failures to the caller instead of falling back.
func GenerateRelationHandler(c echo.Context) error {
	type generateRelationBody struct {
		Source   string `json:"source"`
		Relation string `json:"relation"`
		Model    string `json:"model"`
	}

	data := new(generateRelationBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	remote := c.(*middleware.AppContext).App.Remote
	if remote == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "API key not configured"})
	}

	var opts []ai.GenerateOption
	if data.Model != "" {
		opts = append(opts, ai.WithModel(data.Model))
	}
	target, err := remote.Resolve(c.Request().Context(), data.Source, data.Relation, opts...)
	if errors.Is(err, ai.ErrMissingCredential) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "API key not configured"})
	}
	if err != nil {
		logger.Error("[AI] relation lookup failed", "source", data.Source, "relation", data.Relation, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to get AI response"})
	}

	return c.JSON(http.StatusOK, map[string]string{"target": target})
}
