package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/portfolio-globe/backend/internal/config"
	mid "github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/internal/session"
	"github.com/portfolio-globe/backend/internal/storage"
	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/ai/ollama"
	"github.com/portfolio-globe/backend/pkg/ai/openai"
	"github.com/portfolio-globe/backend/pkg/claims"
	"github.com/portfolio-globe/backend/pkg/ledger"
	"github.com/portfolio-globe/backend/pkg/lobby"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/relation"
)

const (
	maxSessions         = 256
	claimsRefreshBudget = 30 * time.Second
	warmUpBudget        = 2 * time.Minute
	usageReportInterval = time.Hour
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewApp builds every shared service from cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*mid.App, error) {
	local, err := ollama.NewOllamaClient(ollama.NewOllamaClientParams{
		Model:                 cfg.AI.Local.Model,
		BaseURL:               cfg.AI.Local.URL,
		MaxConcurrentRequests: cfg.AI.Local.Parallel,
	})
	if err != nil {
		return nil, fmt.Errorf("create local provider: %w", err)
	}
	remoteClient := openai.NewOpenAIClient(openai.NewOpenAIClientParams{
		Model:   cfg.AI.Remote.Model,
		ChatURL: cfg.AI.Remote.URL,
		ChatKey: cfg.AI.Remote.Key,
	})
	remote := &relation.RemoteProvider{Client: remoteClient}
	resolver := relation.NewResolver(&relation.LocalProvider{Client: local}, remote)

	ledgerClient := ledger.NewClient(ledger.ClientParams{
		URL: cfg.Ledger.URL,
		Program: ledger.Program{
			Package:  cfg.Ledger.Program,
			Module:   cfg.Ledger.Module,
			Function: cfg.Ledger.Function,
		},
		Tries:    cfg.Ledger.Tries,
		PageSize: cfg.Ledger.PageSize,
	})
	claimCache := claims.New(ledgerClient)

	images, err := storage.NewImageCache(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	acts, err := achievements.Load()
	if err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	cities := achievements.Cities(acts)
	polygons := achievements.Polygons(
		achievements.LoadPolygons(cfg.Globe.Polygons),
		achievements.CountryImportance(acts),
	)

	publisher := pubsub.NewPublisher()
	sessions := session.NewManager(session.Params{
		Resolver:    resolver,
		Claims:      claimCache,
		Publisher:   publisher,
		FPS:         cfg.Render.FPS,
		Decay:       cfg.Render.Decay,
		Seeds:       cfg.Graph.Seeds,
		Cities:      cities,
		MaxSessions: maxSessions,
		IdleTimeout: cfg.Server.Idle,
	})

	models := map[string]ai.ChatClient{
		"local":  local,
		"remote": remoteClient,
	}

	return &mid.App{
		Config:      cfg,
		Sessions:    sessions,
		Claims:      claimCache,
		Resolver:    resolver,
		Remote:      remote,
		Publisher:   publisher,
		Lobby:       lobby.NewHub(),
		Models:      models,
		Images:      images,
		ImageClient: &http.Client{Timeout: cfg.Proxy.Timeout},
		Activities:  acts,
		Cities:      cities,
		Venues:      achievements.Venues(acts),
		Polygons:    polygons,
	}, nil
}

// NewEcho wires middleware and routes around app.
func NewEcho(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	if app.Config != nil && app.Config.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(app.Config.Server.BodyLimit))
	}

	var limiter *rate.Limiter
	if app.Config != nil {
		limiter = mid.NewLimiter(app.Config.Proxy.RPS, app.Config.Proxy.Burst)
	}
	RegisterRoutes(e, limiter)
	return e
}

// WarmUp preloads every model. Failures are logged and otherwise ignored.
func WarmUp(ctx context.Context, app *mid.App) {
	for name, model := range app.Models {
		if err := model.LoadModel(ctx); err != nil {
			logger.Warn("[AI] model warm-up failed", "provider", name, "err", err)
			continue
		}
		logger.Debug("[AI] model loaded", "provider", name)
	}
}

// ReportUsage logs the usage of every model since the last report and
// starts a new reporting window.
func ReportUsage(app *mid.App) {
	for name, model := range app.Models {
		m := model.GetMetrics()
		model.ResetMetrics()
		if m.Requests == 0 {
			continue
		}
		logger.Info("[AI] usage",
			"provider", name,
			"requests", m.Requests,
			"tokens", m.TotalTokens,
			"duration_ms", m.DurationMs,
			"tokens_per_second", m.TokenPerSecond,
		)
	}
}

// Shutdown stops every session, the lobby and the frame publisher.
func Shutdown(app *mid.App) {
	ReportUsage(app)
	app.Sessions.CloseAll()
	app.Lobby.Close()
	if err := app.Publisher.Close(); err != nil {
		logger.Debug("[Server] publisher already closed", "err", err)
	}
}

func Init(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", "err", err)
	}
	defer Shutdown(app)

	go func() {
		refreshCtx, cancel := context.WithTimeout(ctx, claimsRefreshBudget)
		defer cancel()
		if err := app.Claims.Refresh(refreshCtx); err != nil {
			logger.Warn("[Claims] initial refresh cancelled", "err", err)
			return
		}
		logger.Info("[Claims] initial refresh done", "claims", app.Claims.Len())
	}()

	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, warmUpBudget)
		defer cancel()
		WarmUp(warmCtx, app)
	}()

	go func() {
		ticker := time.NewTicker(usageReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ReportUsage(app)
			}
		}
	}()

	e := NewEcho(app)

	go func() {
		port := strconv.Itoa(cfg.Server.Port)
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
