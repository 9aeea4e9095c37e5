package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/config"
	"github.com/portfolio-globe/backend/internal/session"
	"github.com/portfolio-globe/backend/internal/storage"
	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/claims"
	"github.com/portfolio-globe/backend/pkg/lobby"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/relation"
)

// App holds the long-lived services every handler shares.
type App struct {
	Config    *config.Config
	Sessions  *session.Manager
	Claims    *claims.Cache
	Resolver  *relation.Resolver
	Remote    relation.Provider
	Publisher *pubsub.Publisher
	Lobby     *lobby.Hub
	// Models are the chat clients behind the resolver, by provider name.
	Models map[string]ai.ChatClient

	Images      storage.ImageCache
	ImageClient *http.Client

	Activities []achievements.Activity
	Cities     []achievements.City
	Venues     []achievements.Venue
	Polygons   []achievements.Polygon
}

type AppContext struct {
	echo.Context
	App     *App
	Session *session.Session
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
