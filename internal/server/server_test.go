package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-globe/backend/internal/config"
	mid "github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/internal/session"
	"github.com/portfolio-globe/backend/internal/storage"
	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/claims"
	"github.com/portfolio-globe/backend/pkg/interaction"
	"github.com/portfolio-globe/backend/pkg/ledger"
	"github.com/portfolio-globe/backend/pkg/lobby"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/relation"
	"github.com/portfolio-globe/backend/pkg/render"
)

type fakeRemote struct {
	answer string
	err    error
	model  string
}

func (f *fakeRemote) Resolve(ctx context.Context, source, rel string, opts ...ai.GenerateOption) (string, error) {
	o := &ai.GenerateOptions{}
	for _, opt := range opts {
		opt(o)
	}
	f.model = o.Model
	return f.answer, f.err
}

type fakeModel struct {
	metrics ai.ModelMetrics
	loadErr error
	loads   atomic.Int32
	resets  atomic.Int32
}

func (f *fakeModel) GenerateChat(context.Context, []ai.ChatMessage, ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (f *fakeModel) LoadModel(context.Context, ...ai.GenerateOption) error {
	f.loads.Add(1)
	return f.loadErr
}

func (f *fakeModel) ResetMetrics() {
	f.resets.Add(1)
	f.metrics = ai.ModelMetrics{}
}

func (f *fakeModel) GetMetrics() ai.ModelMetrics { return f.metrics }

type fakeLedger struct {
	names []string
}

func (f *fakeLedger) QueryClaimTransactions(ctx context.Context, cursor string) (ledger.Page, error) {
	var txs []ledger.Transaction
	for i := range f.names {
		txs = append(txs, ledger.Transaction{
			Digest:  "d" + f.names[i],
			Created: []ledger.CreatedObject{{ID: "0x" + f.names[i]}},
		})
	}
	return ledger.Page{Transactions: txs}, nil
}

func (f *fakeLedger) GetObjects(ctx context.Context, ids []string) ([]ledger.Object, error) {
	var out []ledger.Object
	for _, n := range f.names {
		out = append(out, ledger.Object{ID: "0x" + n, Name: n, URL: "https://img/" + n})
	}
	return out, nil
}

type appOption func(*mid.App)

func testApp(t *testing.T, opts ...appOption) *mid.App {
	t.Helper()
	acts, err := achievements.Load()
	require.NoError(t, err)

	cache := claims.New(&fakeLedger{names: []string{"ocean"}})
	publisher := pubsub.NewPublisher()
	cities := achievements.Cities(acts)
	cfg := &config.Config{
		Server: config.Server{BodyLimit: "1M"},
		AI:     config.AI{Provider: "local"},
	}
	app := &mid.App{
		Config: cfg,
		Sessions: session.NewManager(session.Params{
			Resolver:  relation.NewResolver(nil, nil),
			Claims:    cache,
			Publisher: publisher,
			FPS:       30,
			Decay:     50 * time.Millisecond,
			Seeds:     []string{"ocean", "music", "light"},
			Cities:    cities,
			Seed:      1,
		}),
		Claims:     cache,
		Resolver:   relation.NewResolver(nil, nil),
		Remote:     &fakeRemote{answer: "salt"},
		Publisher:  publisher,
		Lobby:      lobby.NewHub(),
		Images:     storage.NewMemoryCache(0),
		Activities: acts,
		Cities:     cities,
		Venues:     achievements.Venues(acts),
	}
	for _, opt := range opts {
		opt(app)
	}
	t.Cleanup(func() { Shutdown(app) })
	return app
}

func do(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createSession(t *testing.T, e *echo.Echo, kind string) string {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/api/sessions", map[string]string{"kind": kind, "theme": "dark"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[session.Info](t, rec).ID
}

func TestHealth(t *testing.T) {
	e := NewEcho(testApp(t))
	rec := do(t, e, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestModelWarmUpAndUsage(t *testing.T) {
	local := &fakeModel{metrics: ai.ModelMetrics{Requests: 2, TotalTokens: 30}}
	remote := &fakeModel{loadErr: errors.New("unreachable")}
	app := testApp(t, func(app *mid.App) {
		app.Models = map[string]ai.ChatClient{"local": local, "remote": remote}
	})
	e := NewEcho(app)

	WarmUp(context.Background(), app)
	assert.Equal(t, int32(1), local.loads.Load())
	assert.Equal(t, int32(1), remote.loads.Load(), "a failed warm-up must not stop the others")

	rec := do(t, e, http.MethodGet, "/health/ai", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]ai.ModelMetrics](t, rec)
	assert.Equal(t, 2, got["local"].Requests)
	assert.Equal(t, 30, got["local"].TotalTokens)
	assert.Equal(t, 0, got["remote"].Requests)

	ReportUsage(app)
	assert.Equal(t, int32(1), local.resets.Load())
	assert.Equal(t, 0, local.GetMetrics().Requests)
}

func TestProxyImage(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer upstream.Close()

	app := testApp(t)
	e := NewEcho(app)

	rec := do(t, e, http.MethodGet, "/proxy-image", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing 'url' query param", rec.Body.String())

	rec = do(t, e, http.MethodGet, "/proxy-image?url="+upstream.URL+"/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 2; i++ {
		rec = do(t, e, http.MethodGet, "/proxy-image?url="+upstream.URL+"/a.png", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "png-bytes", rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "public, max-age=604800, immutable", rec.Header().Get("Cache-Control"))
	}
	assert.Equal(t, int32(2), hits.Load(), "second image request should be served from cache")

	rec = do(t, e, http.MethodDelete, "/proxy-image", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 1, app.Images.(*storage.MemoryCache).Len(), "the cache cannot be purged over HTTP")

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	rec = do(t, e, http.MethodGet, "/proxy-image?url="+closed.URL+"/x.png", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProxyRateLimit(t *testing.T) {
	e := NewEcho(testApp(t, func(app *mid.App) {
		app.Config.Proxy = config.Proxy{RPS: 0.001, Burst: 1}
	}))
	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/proxy-image", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, e, http.MethodGet, "/proxy-image", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/health", nil).Code)
}

func TestGenerateRelation(t *testing.T) {
	remote := &fakeRemote{answer: "salt"}
	e := NewEcho(testApp(t, func(app *mid.App) { app.Remote = remote }))
	body := map[string]string{"source": "ocean", "relation": "contains", "model": "m1"}

	rec := do(t, e, http.MethodPost, "/api/ai", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "salt", decode[map[string]string](t, rec)["target"])
	assert.Equal(t, "m1", remote.model)

	remote.err = ai.ErrMissingCredential
	rec = do(t, e, http.MethodPost, "/api/ai", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "API key not configured", decode[map[string]string](t, rec)["error"])

	remote.err = &ai.StatusError{StatusCode: http.StatusBadGateway}
	rec = do(t, e, http.MethodPost, "/api/ai", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to get AI response", decode[map[string]string](t, rec)["error"])
}

func TestSessionRelationAndClaimFlow(t *testing.T) {
	e := NewEcho(testApp(t))
	id := createSession(t, e, "words")
	base := "/api/sessions/" + id

	rec := do(t, e, http.MethodPost, base+"/relations", map[string]string{"relation": "deep"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "relation without selection")

	rec = do(t, e, http.MethodPost, base+"/select", map[string]string{"id": "nowhere"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, base+"/select", map[string]string{"id": "music"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, interaction.ModeNodeSelected, decode[interaction.State](t, rec).Mode)

	rec = do(t, e, http.MethodPost, base+"/relations", map[string]string{"relation": "loud"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[struct {
		Node    struct{ ID string }       `json:"node"`
		Created bool                      `json:"created"`
		Claim   *interaction.PendingClaim `json:"claim"`
		State   interaction.State         `json:"state"`
	}](t, rec)
	assert.Equal(t, "loud-music", res.Node.ID)
	assert.True(t, res.Created)
	require.NotNil(t, res.Claim)
	assert.Equal(t, "music loud loud-music", res.Claim.Description)
	assert.Equal(t, interaction.ModeIdle, res.State.Mode)

	rec = do(t, e, http.MethodGet, base+"/claim", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, e, http.MethodPatch, base+"/claim", map[string]string{"imageReference": "https://img/x.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://img/x.png", decode[interaction.PendingClaim](t, rec).ImageReference)

	rec = do(t, e, http.MethodPost, base+"/claim/outcome", map[string]any{"claimId": "not-a-claim"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, e, http.MethodPost, base+"/claim/outcome", map[string]any{"claimId": "aaaaaaaaaaaaaaaaaaaaa"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodPost, base+"/claim/outcome", map[string]any{"claimId": res.Claim.ID, "success": false, "reason": "rejected"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claim failed: rejected", decode[map[string]any](t, rec)["notice"])

	rec = do(t, e, http.MethodGet, base+"/claim", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, e, http.MethodDelete, base+"/claim", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, base+"/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	graph := decode[struct {
		Nodes []struct{ ID string }    `json:"nodes"`
		Edges []struct{ Label string } `json:"edges"`
	}](t, rec)
	assert.Len(t, graph.Nodes, 4)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "loud", graph.Edges[0].Label)

	rec = do(t, e, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, e, http.MethodGet, base+"/graph", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, e, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimedNodesAreReported(t *testing.T) {
	app := testApp(t)
	e := NewEcho(app)

	rec := do(t, e, http.MethodPost, "/api/claims/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Count  int            `json:"count"`
		Claims []claims.Entry `json:"claims"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "docean", list.Claims[0].TransactionID)

	id := createSession(t, e, "words")
	rec = do(t, e, http.MethodGet, "/api/sessions/"+id+"/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"ocean"}, decode[map[string]any](t, rec)["claimed"])

	rec = do(t, e, http.MethodPost, "/api/sessions/"+id+"/claim", map[string]string{"nodeId": "ocean"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, e, http.MethodPost, "/api/sessions/"+id+"/claim", map[string]string{"nodeId": "music"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, e, http.MethodPost, "/api/sessions/"+id+"/claim", map[string]string{"nodeId": "light"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, e, http.MethodGet, "/api/claims", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInputAndFullscreen(t *testing.T) {
	e := NewEcho(testApp(t))
	base := "/api/sessions/" + createSession(t, e, "globe")

	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodPost, base+"/input", map[string]any{"type": "key", "key": "W", "down": true}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, base+"/input", map[string]any{"type": "key", "key": "q", "down": true}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, base+"/input", map[string]any{"type": "scroll"}).Code)
	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodPost, base+"/input", map[string]any{"type": "viewport", "width": 800, "height": 600}).Code)
	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodPost, base+"/input", map[string]any{"type": "drag", "dx": 4, "dy": -2}).Code)

	rec := do(t, e, http.MethodPost, base+"/fullscreen", map[string]any{"action": "request", "view": "2d"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[interaction.State](t, rec)
	assert.Equal(t, interaction.View2D, st.View)
	assert.True(t, st.Fullscreen.Requested)
	assert.False(t, st.Fullscreen.Active)

	rec = do(t, e, http.MethodPost, base+"/fullscreen", map[string]any{"action": "change", "active": true})
	st = decode[interaction.State](t, rec)
	assert.True(t, st.Fullscreen.Active)
	assert.False(t, st.Fullscreen.Requested)

	rec = do(t, e, http.MethodPost, base+"/fullscreen", map[string]any{"action": "change", "active": false})
	assert.False(t, decode[interaction.State](t, rec).Fullscreen.Active)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, base+"/fullscreen", map[string]any{"action": "maximize"}).Code)
}

func TestDemoAndFrames(t *testing.T) {
	e := NewEcho(testApp(t))
	base := "/api/sessions/" + createSession(t, e, "words")

	rec := do(t, e, http.MethodPost, base+"/demo", map[string]any{"action": "generate", "nodes": 10, "clusters": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, base+"/demo", map[string]any{"action": "reset"}).Code)

	base = "/api/sessions/" + createSession(t, e, "demo")
	require.Equal(t, http.StatusOK, do(t, e, http.MethodPost, base+"/demo", map[string]any{"action": "generate", "nodes": 10, "clusters": 2}).Code)
	rec = do(t, e, http.MethodPost, base+"/demo", map[string]any{"action": "generate", "nodes": 10, "clusters": 2})
	assert.Equal(t, http.StatusConflict, rec.Code, "generated nodes are never replaced")

	rec = do(t, e, http.MethodGet, base+"/frame?t=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	frame := decode[render.Frame](t, rec)
	assert.Equal(t, int64(1000), frame.Time)
	assert.Len(t, frame.Nodes, 10)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, base+"/frame?t=soon", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, base+"/demo", map[string]any{"action": "explode"}).Code)

	rec = do(t, e, http.MethodPatch, base+"/render", map[string]bool{"paused": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["paused"])
}

func TestIdleSessionExpires(t *testing.T) {
	var now atomic.Int64
	now.Store(time.Unix(1_700_000_000, 0).UnixNano())
	clock := render.ClockFunc(func() time.Time { return time.Unix(0, now.Load()) })
	app := testApp(t, func(app *mid.App) {
		app.Sessions = session.NewManager(session.Params{
			Publisher:    app.Publisher,
			FPS:          10,
			Decay:        time.Second,
			Clock:        clock,
			IdleTimeout:  time.Minute,
			ReapInterval: time.Hour,
		})
	})
	e := NewEcho(app)
	base := "/api/sessions/" + createSession(t, e, "demo")

	for i := 0; i < 3; i++ {
		now.Add(int64(50 * time.Second))
		require.Equal(t, http.StatusOK, do(t, e, http.MethodGet, base, nil).Code)
		assert.Equal(t, 0, app.Sessions.Reap(), "requests keep the session alive")
	}

	now.Add(int64(2 * time.Minute))
	assert.Equal(t, 1, app.Sessions.Reap())
	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, base, nil).Code)
}

func TestFrameStream(t *testing.T) {
	app := testApp(t)
	srv := httptest.NewServer(NewEcho(app))
	defer srv.Close()

	id := createSession(t, NewEcho(app), "words")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/frames", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	frames := 0
	for frames < 2 {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == "event: frame" {
			frames++
		}
	}

	require.NoError(t, app.Sessions.Close(id))
	_, err = io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		require.NoError(t, err)
	}
}

func TestGlobeRoutes(t *testing.T) {
	e := NewEcho(testApp(t))

	rec := do(t, e, http.MethodGet, "/api/globe/cities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]achievements.City](t, rec))

	rec = do(t, e, http.MethodGet, "/api/globe/arcs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]achievements.Arc](t, rec))

	rec = do(t, e, http.MethodGet, "/api/globe/clusters?radius=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exact := decode[[]achievements.Cluster](t, rec)
	rec = do(t, e, http.MethodGet, "/api/globe/clusters?radius=180", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]achievements.Cluster](t, rec), 1)
	assert.GreaterOrEqual(t, len(exact), 1)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/api/globe/clusters?radius=-1", nil).Code)

	rec = do(t, e, http.MethodGet, "/api/globe/polygons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/api/globe/venues", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/api/globe/legend", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/api/globe/activities", nil).Code)
}

func TestLobbyRoute(t *testing.T) {
	srv := httptest.NewServer(NewEcho(testApp(t)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/lobby", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var out lobby.Outbound
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "welcome", out.Type)
	assert.NotEmpty(t, out.ConnectionID)
}
