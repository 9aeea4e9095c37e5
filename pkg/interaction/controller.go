// Package interaction turns client input into scene mutations and camera
// moves. A Controller owns one visualization's interaction state and only
// changes it through named transitions.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/portfolio-globe/backend/internal/util"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/relation"
	"github.com/portfolio-globe/backend/pkg/scene"
)

var (
	ErrBusy           = errors.New("a relation is already being added")
	ErrEmptyRelation  = errors.New("relation must not be empty")
	ErrNoSelection    = errors.New("no node selected")
	ErrNoPendingClaim = errors.New("no pending claim")
	ErrAlreadyClaimed = errors.New("node is already claimed")
	ErrClaimPending   = errors.New("another claim is pending")
)

// Mode is the selection state.
type Mode string

const (
	ModeIdle           Mode = "idle"
	ModeNodeSelected   Mode = "nodeSelected"
	ModeAddingRelation Mode = "addingRelation"
)

// PendingClaim is a claim the user may still submit or cancel.
type PendingClaim struct {
	ID             string `json:"id"`
	NodeID         string `json:"nodeId"`
	Description    string `json:"description"`
	ImageReference string `json:"imageReference"`
}

// Outcome is the result of a claim submission reported by the client.
type Outcome struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Digest  string `json:"digest,omitempty"`
}

// State is a copy of the controller state.
type State struct {
	Mode       Mode            `json:"mode"`
	Selected   string          `json:"selected,omitempty"`
	Busy       bool            `json:"busy"`
	Pending    *PendingClaim   `json:"pending,omitempty"`
	Notice     string          `json:"notice,omitempty"`
	Fullscreen Fullscreen      `json:"fullscreen"`
	View       View            `json:"view"`
	Hovered    string          `json:"hovered,omitempty"`
	Camera     geo.PointOfView `json:"camera"`
	Flight     *Flight         `json:"flight,omitempty"`
}

// RelationResolver resolves a relation and never fails.
type RelationResolver interface {
	Resolve(ctx context.Context, source, rel string, kind relation.Kind, opts ...ai.GenerateOption) string
}

type fallbackResolver struct{}

func (fallbackResolver) Resolve(_ context.Context, source, rel string, _ relation.Kind, _ ...ai.GenerateOption) string {
	return relation.Fallback(source, rel)
}

// ClaimIndex is the claimed-state cache.
type ClaimIndex interface {
	IsClaimed(name string) bool
	Refresh(ctx context.Context) error
}

// Params configures a Controller.
type Params struct {
	Store *scene.Store
	// Resolver defaults to the deterministic relation fallback.
	Resolver RelationResolver
	Claims   ClaimIndex
	// DefaultImage prefills the image reference of new pending claims.
	DefaultImage string
	PointOfView  geo.PointOfView
}

// Controller is safe for concurrent use. Network calls run without the
// lock held.
type Controller struct {
	mu sync.Mutex

	store        *scene.Store
	resolver     RelationResolver
	claims       ClaimIndex
	defaultImage string

	mode     Mode
	selected string
	busy     bool
	pending  *PendingClaim
	notice   string

	fullscreen Fullscreen
	view       View
	hover      hoverState

	globe  *geo.GlobeCamera
	flat   *geo.FlatCamera
	motion motion
	flight *Flight
}

// New returns an idle controller.
func New(params Params) *Controller {
	pov := params.PointOfView
	if pov == (geo.PointOfView{}) {
		pov = geo.DefaultPointOfView
	}
	resolver := params.Resolver
	if resolver == nil {
		resolver = fallbackResolver{}
	}
	return &Controller{
		store:        params.Store,
		resolver:     resolver,
		claims:       params.Claims,
		defaultImage: params.DefaultImage,
		mode:         ModeIdle,
		view:         View3D,
		globe:        geo.NewGlobeCamera(pov),
		flat:         &geo.FlatCamera{},
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Mode:       c.mode,
		Selected:   c.selected,
		Busy:       c.busy,
		Notice:     c.notice,
		Fullscreen: c.fullscreen,
		View:       c.view,
		Hovered:    c.hover.current,
		Camera:     c.globe.PointOfView(),
	}
	if c.pending != nil {
		p := *c.pending
		s.Pending = &p
	}
	if c.flight != nil {
		f := c.flight.clone()
		s.Flight = &f
	}
	return s
}

// SelectNode focuses id for relation entry. Selecting while a relation is
// being added is rejected. A pending claim is left as is.
func (c *Controller) SelectNode(id string) error {
	id = scene.NormalizeID(id)
	if !c.store.Snapshot().Has(id) {
		return fmt.Errorf("select %q: %w", id, scene.ErrUnknownNode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.mode = ModeNodeSelected
	c.selected = id
	return nil
}

// ClearSelection returns to idle unless a relation is in flight.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return
	}
	c.mode = ModeIdle
	c.selected = ""
}

// SubmitResult is what a relation submission changed.
type SubmitResult struct {
	scene.RelationResult
	Claim *PendingClaim `json:"claim,omitempty"`
}

// SubmitRelation resolves rel from the selected node and commits the
// result. Input is validated before any call is made. While it runs further
// submissions fail with ErrBusy.
func (c *Controller) SubmitRelation(ctx context.Context, rel string, kind relation.Kind, opts ...ai.GenerateOption) (SubmitResult, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return SubmitResult{}, ErrEmptyRelation
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return SubmitResult{}, ErrBusy
	}
	if c.mode != ModeNodeSelected || c.selected == "" {
		c.mu.Unlock()
		return SubmitResult{}, ErrNoSelection
	}
	source := c.selected
	c.busy = true
	c.mode = ModeAddingRelation
	c.mu.Unlock()

	target := relation.Normalize(c.resolver.Resolve(ctx, source, rel, kind, opts...))
	res, err := c.store.AddRelation(source, target, rel)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.mode = ModeIdle
	c.selected = ""
	if err != nil {
		return SubmitResult{}, err
	}

	out := SubmitResult{RelationResult: res}
	if res.Created && c.pending == nil && !c.isClaimed(res.Node.ID) {
		c.pending = &PendingClaim{
			ID:             util.NewID(),
			NodeID:         res.Node.ID,
			Description:    fmt.Sprintf("%s %s %s", source, rel, res.Node.ID),
			ImageReference: c.defaultImage,
		}
		p := *c.pending
		out.Claim = &p
		logger.Debug("[Interaction] claim opened", "node", res.Node.ID)
	}
	return out, nil
}

func (c *Controller) isClaimed(id string) bool {
	return c.claims != nil && c.claims.IsClaimed(id)
}

// ClaimNode opens a pending claim for an existing node.
func (c *Controller) ClaimNode(id string) (PendingClaim, error) {
	id = scene.NormalizeID(id)
	if !c.store.Snapshot().Has(id) {
		return PendingClaim{}, fmt.Errorf("claim %q: %w", id, scene.ErrUnknownNode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return PendingClaim{}, ErrClaimPending
	}
	if c.isClaimed(id) {
		return PendingClaim{}, ErrAlreadyClaimed
	}
	c.pending = &PendingClaim{
		ID:             util.NewID(),
		NodeID:         id,
		Description:    id,
		ImageReference: c.defaultImage,
	}
	return *c.pending, nil
}

// Pending returns the pending claim.
func (c *Controller) Pending() (PendingClaim, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingClaim{}, false
	}
	return *c.pending, true
}

// SetClaimImage edits the image reference of the pending claim.
func (c *Controller) SetClaimImage(ref string) (PendingClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingClaim{}, ErrNoPendingClaim
	}
	c.pending.ImageReference = strings.TrimSpace(ref)
	return *c.pending, nil
}

// CancelClaim drops the pending claim.
func (c *Controller) CancelClaim() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return ErrNoPendingClaim
	}
	c.pending = nil
	return nil
}

// ResolveClaim records the outcome of a submitted claim and clears it. A
// successful claim refreshes the claimed-state cache. The returned notice
// is what the user is shown.
func (c *Controller) ResolveClaim(ctx context.Context, outcome Outcome) (string, error) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return "", ErrNoPendingClaim
	}
	p := *c.pending
	c.pending = nil
	if !outcome.Success {
		reason := strings.TrimSpace(outcome.Reason)
		if reason == "" {
			reason = "unknown error"
		}
		c.notice = "claim failed: " + reason
		notice := c.notice
		c.mu.Unlock()
		logger.Info("[Interaction] claim failed", "node", p.NodeID, "reason", reason)
		return notice, nil
	}
	c.notice = "claimed " + p.NodeID
	if outcome.Digest != "" {
		c.notice += " (" + outcome.Digest + ")"
	}
	notice := c.notice
	c.mu.Unlock()

	logger.Info("[Interaction] claim succeeded", "node", p.NodeID, "digest", outcome.Digest)
	if c.claims != nil {
		refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.claims.Refresh(refreshCtx); err != nil {
			logger.Warn("[Interaction] claims refresh after claim failed", "err", err)
		}
	}
	return notice, nil
}
