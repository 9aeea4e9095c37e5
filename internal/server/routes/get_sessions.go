package routes

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/internal/session"
	"github.com/portfolio-globe/backend/pkg/interaction"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/scene"
)

const heartbeatInterval = 15 * time.Second

func GetSessionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, c.(*middleware.AppContext).Session.Info())
}

// GetGraphHandler returns the current scene with the claimed state of every
// node.
func GetGraphHandler(c echo.Context) error {
	type graphResponse struct {
		Version uint64            `json:"version"`
		Nodes   []scene.Node      `json:"nodes"`
		Edges   []scene.Edge      `json:"edges"`
		Claimed []string          `json:"claimed"`
		State   interaction.State `json:"state"`
	}

	cc := c.(*middleware.AppContext)
	snap := cc.Session.Store.Snapshot()
	res := graphResponse{
		Version: snap.Version(),
		Nodes:   snap.Nodes(),
		Edges:   snap.Edges(),
		Claimed: []string{},
		State:   cc.Session.Controller.State(),
	}
	if cc.App.Claims != nil {
		for _, n := range res.Nodes {
			if cc.App.Claims.IsClaimed(n.ID) {
				res.Claimed = append(res.Claimed, n.ID)
			}
		}
	}
	return c.JSON(http.StatusOK, res)
}

func GetClaimHandler(c echo.Context) error {
	claim, ok := c.(*middleware.AppContext).Session.Controller.Pending()
	if !ok {
		return errorResponse(c, interaction.ErrNoPendingClaim)
	}
	return c.JSON(http.StatusOK, claim)
}

// GetFrameHandler builds one frame at ?t= milliseconds since the epoch, or
// now when t is missing.
func GetFrameHandler(c echo.Context) error {
	var at time.Time
	if raw := c.QueryParam("t"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid frame time"})
		}
		at = time.UnixMilli(ms)
	}
	return c.JSON(http.StatusOK, c.(*middleware.AppContext).Session.Frame(at))
}

// StreamFramesHandler streams the frames of a session as server-sent events
// until the client goes away or the session is closed.
func StreamFramesHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	s := cc.Session
	ctx := c.Request().Context()

	sub, err := cc.App.Publisher.Subscribe(ctx, s.Topic())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Frame stream unavailable"})
	}
	defer sub.Close()
	defer s.Stream()()

	w := pubsub.NewWriter(c.Response())
	w.Start()
	if err := w.WriteEvent(session.FrameEvent, s.Frame(time.Time{})); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				logger.Debug("[Server] frame stream ended", "session", s.ID)
				return nil
			}
			if err := w.WriteRaw(ev.Type, ev.Data); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if err := w.WriteComment("ping"); err != nil {
				return nil
			}
		}
	}
}
