package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/internal/session"
	"github.com/portfolio-globe/backend/internal/util"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/interaction"
	"github.com/portfolio-globe/backend/pkg/relation"
	"github.com/portfolio-globe/backend/pkg/style"
)

// CreateSessionHandler mounts a new visualization.
func CreateSessionHandler(c echo.Context) error {
	type createSessionBody struct {
		Kind  string `json:"kind" validate:"omitempty,oneof=words globe demo"`
		Theme string `json:"theme" validate:"omitempty,oneof=dark light"`
	}

	data := new(createSessionBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidBody(c)
	}

	kind, err := session.ParseKind(data.Kind)
	if err != nil {
		return invalidBody(c)
	}

	s, err := c.(*middleware.AppContext).App.Sessions.Create(kind, style.ParseTheme(data.Theme))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, s.Info())
}

// SelectNodeHandler selects a node, or clears the selection for an empty id.
func SelectNodeHandler(c echo.Context) error {
	type selectBody struct {
		ID string `json:"id"`
	}

	data := new(selectBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}

	s := c.(*middleware.AppContext).Session
	if data.ID == "" {
		s.Controller.ClearSelection()
	} else if err := s.Controller.SelectNode(data.ID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, s.Controller.State())
}

// AddRelationHandler resolves a relation from the selected node and adds
// the result to the scene.
func AddRelationHandler(c echo.Context) error {
	type addRelationBody struct {
		Relation string `json:"relation"`
		Kind     string `json:"kind"`
		Model    string `json:"model"`
	}

	type addRelationResponse struct {
		interaction.SubmitResult
		State interaction.State `json:"state"`
	}

	data := new(addRelationBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}

	app := c.(*middleware.AppContext).App
	s := c.(*middleware.AppContext).Session

	kind := app.Config.AI.Provider
	if data.Kind != "" {
		kind = data.Kind
	}
	var opts []ai.GenerateOption
	if data.Model != "" {
		opts = append(opts, ai.WithModel(data.Model))
	}

	res, err := s.SubmitRelation(c.Request().Context(), data.Relation, relation.ParseKind(kind), opts...)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, addRelationResponse{SubmitResult: res, State: s.Controller.State()})
}

// DemoHandler drives the demo features: bulk generation into an empty demo
// session and the plane flight.
func DemoHandler(c echo.Context) error {
	type demoBody struct {
		Action   string `json:"action" validate:"required,oneof=generate flight land"`
		Nodes    int    `json:"nodes" validate:"omitempty,min=1,max=5000"`
		Clusters int    `json:"clusters" validate:"omitempty,min=1,max=100"`
	}

	data := new(demoBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidBody(c)
	}

	s := c.(*middleware.AppContext).Session
	switch data.Action {
	case "generate":
		nodes, clusters := data.Nodes, data.Clusters
		if nodes == 0 {
			nodes = 200
		}
		if clusters == 0 {
			clusters = 5
		}
		if err := s.Generate(nodes, clusters); err != nil {
			return errorResponse(c, err)
		}
	case "flight":
		s.StartFlight()
	case "land":
		s.Controller.StopFlight()
	}
	return c.JSON(http.StatusOK, s.Info())
}

// FullscreenHandler records fullscreen requests and the notifications the
// browser sends when fullscreen actually changes.
func FullscreenHandler(c echo.Context) error {
	type fullscreenBody struct {
		Action string `json:"action" validate:"required,oneof=request change toggle"`
		View   string `json:"view" validate:"omitempty,oneof=2d 3d"`
		Active bool   `json:"active"`
	}

	data := new(fullscreenBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidBody(c)
	}

	ctrl := c.(*middleware.AppContext).Session.Controller
	switch data.Action {
	case "request":
		ctrl.RequestFullscreen(interaction.ParseView(data.View))
	case "change":
		ctrl.OnFullscreenChange(data.Active)
	case "toggle":
		ctrl.ToggleView()
	}
	return c.JSON(http.StatusOK, ctrl.State())
}

// InputHandler applies one pointer, keyboard or viewport event.
func InputHandler(c echo.Context) error {
	type inputBody struct {
		Type   string  `json:"type" validate:"required,oneof=drag joystick key hover unhover viewport"`
		DX     float64 `json:"dx"`
		DY     float64 `json:"dy"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Key    string  `json:"key"`
		Down   bool    `json:"down"`
		ID     string  `json:"id"`
		Width  float64 `json:"width" validate:"min=0"`
		Height float64 `json:"height" validate:"min=0"`
	}

	data := new(inputBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidBody(c)
	}

	s := c.(*middleware.AppContext).Session
	ctrl := s.Controller
	switch data.Type {
	case "drag":
		ctrl.Drag(data.DX, data.DY)
	case "joystick":
		ctrl.Joystick(data.X, data.Y)
	case "key":
		if !ctrl.Key(data.Key, data.Down) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unsupported key"})
		}
	case "hover":
		ctrl.Hover(data.ID, s.Now())
	case "unhover":
		ctrl.ClearHover()
	case "viewport":
		ctrl.SetViewport(data.Width, data.Height)
	}
	return c.NoContent(http.StatusNoContent)
}

// OpenClaimHandler opens a claim for an existing node.
func OpenClaimHandler(c echo.Context) error {
	type openClaimBody struct {
		NodeID string `json:"nodeId" validate:"required"`
	}

	data := new(openClaimBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}
	if err := c.Validate(data); err != nil {
		return invalidBody(c)
	}

	claim, err := c.(*middleware.AppContext).Session.Controller.ClaimNode(data.NodeID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, claim)
}

// ClaimOutcomeHandler records the result of a claim the client submitted.
// A claimId, when sent, must name the pending claim so stale outcomes are
// rejected.
func ClaimOutcomeHandler(c echo.Context) error {
	type claimOutcomeBody struct {
		ClaimID string `json:"claimId"`
		interaction.Outcome
	}

	type outcomeResponse struct {
		Notice string            `json:"notice"`
		State  interaction.State `json:"state"`
	}

	data := new(claimOutcomeBody)
	if err := c.Bind(data); err != nil {
		return invalidBody(c)
	}

	ctrl := c.(*middleware.AppContext).Session.Controller
	if data.ClaimID != "" {
		if !util.IsNanoid(data.ClaimID) {
			return invalidBody(c)
		}
		pending, ok := ctrl.Pending()
		if !ok {
			return errorResponse(c, interaction.ErrNoPendingClaim)
		}
		if pending.ID != data.ClaimID {
			return c.JSON(http.StatusConflict, map[string]string{"error": "Claim does not match the pending claim"})
		}
	}

	notice, err := ctrl.ResolveClaim(c.Request().Context(), data.Outcome)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, outcomeResponse{Notice: notice, State: ctrl.State()})
}
