package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"tinking/backend/internal/api/handlers"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/metrics"
	"tinking/backend/internal/models"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/recipe"
	"tinking/backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopHTML = `<html><head><title>Shop</title></head><body>
<div class="list">
  <a class="title" href="/p/1"><span class="label">One</span></a>
  <a class="title" href="/p/2"><span class="label">Two</span></a>
</div>
<ul class="prices">
  <li class="price">10$</li>
  <li class="price">20$</li>
  <li class="price">30$</li>
</ul>
<input id="q" name="q">
</body></html>`

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recipeView struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Local     bool          `json:"local"`
	Steps     []models.Step `json:"steps"`
	Recording *int          `json:"recording"`
	Pending   []int         `json:"pending"`
	Actions   []string      `json:"actions"`
}

type fakeLive struct {
	page *dom.Page

	mu        sync.Mutex
	intercept func() bool
	closed    int
}

func (f *fakeLive) Page() *dom.Page { return f.page }

func (f *fakeLive) Intercept(fn func() bool) {
	f.mu.Lock()
	f.intercept = fn
	f.mu.Unlock()
}

func (f *fakeLive) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

type server struct {
	router  *gin.Engine
	manager *recipe.Manager
}

func newServer(t *testing.T, opener handlers.PageOpener) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	mem := store.NewMemory()
	manager := recipe.NewManager(recipe.ManagerConfig{Drafts: mem, DebounceWindow: time.Hour, Observer: m})
	t.Cleanup(manager.CloseAll)

	h := handlers.New(handlers.Config{
		Manager:  manager,
		Tinks:    mem,
		OpenPage: opener,
		Metrics:  m,
	})
	return &server{router: SetupRoutes(h, reg), manager: manager}
}

func (s *server) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, rec.Code, env.Code)
	}
	return rec.Code, env
}

func (s *server) recipe(t *testing.T, method, path string, body any) recipeView {
	t.Helper()
	code, env := s.do(t, method, path, body)
	require.Less(t, code, 300, env.Message)
	var v recipeView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (s *server) createHTML(t *testing.T) recipeView {
	t.Helper()
	v := s.recipe(t, http.MethodPost, "/api/v1/recipes", gin.H{"url": "https://shop.example.com/", "html": shopHTML})
	require.True(t, v.Local)
	require.Len(t, v.Steps, 1)
	return v
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	code, env := s.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}

func TestPickAndGenerate(t *testing.T) {
	s := newServer(t, nil)
	v := s.createHTML(t)
	base := "/api/v1/recipes/" + v.ID

	code, env := s.do(t, http.MethodPost, base+"/steps", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Contains(t, string(env.Data), `"index":1`)

	s.recipe(t, http.MethodPost, base+"/steps/1/selection", gin.H{"tagType": ""})
	v = s.recipe(t, http.MethodPost, base+"/interactions", gin.H{"type": "click", "selector": "li.price", "index": 2})
	step := v.Steps[1]
	assert.Equal(t, "ul.prices li.price", step.Selector)
	assert.Equal(t, 3, step.TotalSelected)
	assert.Equal(t, models.ActionExtractText, step.Action)

	v = s.recipe(t, http.MethodPut, base+"/steps/1", gin.H{"variableName": "price"})
	assert.Equal(t, "price", v.Steps[1].VariableName)

	code, env = s.do(t, http.MethodPost, base+"/generate", gin.H{"driver": "playwright", "outputFilename": "prices.json"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var script struct {
		Driver string `json:"driver"`
		Script string `json:"script"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &script))
	assert.Equal(t, "playwright", script.Driver)
	assert.Contains(t, script.Script, `require("playwright")`)
	assert.Contains(t, script.Script, "ul.prices li.price")
	assert.Contains(t, script.Script, "prices.json")
}

func TestStepEditErrors(t *testing.T) {
	s := newServer(t, nil)
	v := s.createHTML(t)
	base := "/api/v1/recipes/" + v.ID

	code, _ := s.do(t, http.MethodGet, "/api/v1/recipes/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPut, base+"/steps/0", gin.H{"selector": "h1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPut, base+"/steps/9", gin.H{"selector": "h1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodDelete, base+"/steps/x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	s.do(t, http.MethodPost, base+"/steps", nil)
	code, _ = s.do(t, http.MethodPut, base+"/steps/1", gin.H{"action": "dance"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPut, base+"/steps/1", gin.H{"selector": "li.price", "action": "dance", "variableName": "price"})
	assert.Equal(t, http.StatusBadRequest, code)
	unchanged := s.recipe(t, http.MethodGet, base, nil)
	assert.Empty(t, unchanged.Steps[1].Selector)
	assert.Empty(t, unchanged.Steps[1].VariableName)

	code, _ = s.do(t, http.MethodPost, base+"/generate", gin.H{"driver": "selenium"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, base+"/interactions", gin.H{"type": "scroll", "selector": "li"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPendingSteps(t *testing.T) {
	s := newServer(t, nil)
	v := s.createHTML(t)
	base := "/api/v1/recipes/" + v.ID
	assert.Empty(t, v.Pending)
	assert.Contains(t, v.Actions, string(models.ActionExtractText))

	s.do(t, http.MethodPost, base+"/steps", nil)
	v = s.recipe(t, http.MethodPut, base+"/steps/1", gin.H{"action": models.ActionExtractText})
	assert.Equal(t, []int{1}, v.Pending)

	v = s.recipe(t, http.MethodPut, base+"/steps/1", gin.H{"selector": "li.price"})
	assert.Empty(t, v.Pending)
}

func TestOptionsAndRecords(t *testing.T) {
	s := newServer(t, nil)
	v := s.createHTML(t)
	base := "/api/v1/recipes/" + v.ID
	s.do(t, http.MethodPost, base+"/steps", nil)
	s.recipe(t, http.MethodPut, base+"/steps/1", gin.H{"selector": "li.price", "action": models.ActionExtractText})

	code, _ := s.do(t, http.MethodPost, base+"/steps/1/options", nil)
	require.Equal(t, http.StatusCreated, code)
	v = s.recipe(t, http.MethodPut, base+"/steps/1/options/0", gin.H{"type": models.OptionRegex, "value": `(\d+)\$`})
	require.Len(t, v.Steps[1].Options, 1)
	assert.Equal(t, `(\d+)\$`, v.Steps[1].Options[0].OptionValue())

	code, env := s.do(t, http.MethodGet, base+"/steps/1/preview", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"formatted":"10"`)
	assert.Contains(t, string(env.Data), `"regexValid":true`)

	v = s.recipe(t, http.MethodDelete, base+"/steps/1/options/0", nil)
	assert.Empty(t, v.Steps[1].Options)

	s.do(t, http.MethodPost, base+"/steps", nil)
	v = s.recipe(t, http.MethodPut, base+"/steps/2", gin.H{"action": models.ActionRecord})
	require.NotNil(t, v.Recording)
	assert.Equal(t, 2, *v.Recording)
	s.recipe(t, http.MethodPost, base+"/interactions", gin.H{"type": "click", "selector": "#q"})
	v = s.recipe(t, http.MethodPost, base+"/interactions", gin.H{"type": "keydown", "selector": "#q", "key": "a"})
	require.Len(t, v.Steps[2].RecordedClicksAndKeys, 2)

	v = s.recipe(t, http.MethodPut, base+"/steps/2/records/1", gin.H{"input": "shoes"})
	assert.Equal(t, models.KeyInput{Input: "shoes"}, v.Steps[2].RecordedClicksAndKeys[1])

	code, _ = s.do(t, http.MethodPut, base+"/steps/2/records/1", gin.H{"input": "a", "selector": "b"})
	assert.Equal(t, http.StatusBadRequest, code)

	v = s.recipe(t, http.MethodDelete, base+"/recording", nil)
	assert.Nil(t, v.Recording)
	v = s.recipe(t, http.MethodDelete, base+"/steps/2/records/0", nil)
	assert.Len(t, v.Steps[2].RecordedClicksAndKeys, 1)
}

func TestTinks(t *testing.T) {
	s := newServer(t, nil)
	v := s.createHTML(t)
	s.do(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/steps", nil)
	s.recipe(t, http.MethodPut, "/api/v1/recipes/"+v.ID+"/steps/1", gin.H{"selector": "a.title"})

	code, env := s.do(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/tinks", nil)
	require.Equal(t, http.StatusCreated, code)
	var saved struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	require.NotEmpty(t, saved.ID)

	code, env = s.do(t, http.MethodGet, "/api/v1/tinks/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"selector":"a.title"`)

	other := s.createHTML(t)
	loaded := s.recipe(t, http.MethodPost, "/api/v1/recipes/"+other.ID+"/tinks/"+saved.ID, nil)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "a.title", loaded.Steps[1].Selector)

	code, _ = s.do(t, http.MethodGet, "/api/v1/tinks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatelessCompile(t *testing.T) {
	s := newServer(t, nil)
	steps := []models.Step{models.NewStartStep("https://example.com")}
	extract := models.NewStep()
	extract.Action = models.ActionExtractText
	extract.Selector = "h1"
	extract.TotalSelected = 1
	steps = append(steps, extract)

	code, env := s.do(t, http.MethodPost, "/api/v1/compile", gin.H{"steps": steps})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Contains(t, string(env.Data), `"driver":"puppeteer"`)
	assert.Contains(t, s.scrape(t), `tinking_scripts_total{driver="puppeteer",status="ok"} 1`)

	code, _ = s.do(t, http.MethodPost, "/api/v1/compile", gin.H{"steps": []models.Step{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, s.scrape(t), `tinking_scripts_total{driver="puppeteer",status="error"} 1`)

	code, _ = s.do(t, http.MethodPost, "/api/v1/compile", gin.H{"steps": steps, "driver": "cypress"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func (s *server) scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestLiveSessionLifecycle(t *testing.T) {
	code, _ := newServer(t, nil).do(t, http.MethodPost, "/api/v1/recipes", gin.H{"url": "https://shop.example.com/"})
	assert.Equal(t, http.StatusBadRequest, code)

	var live *fakeLive
	s := newServer(t, func(_ context.Context, pageURL string) (handlers.LivePage, error) {
		page, err := dom.ParseString(shopHTML, pageURL)
		if err != nil {
			return nil, err
		}
		live = &fakeLive{page: page}
		return live, nil
	})
	v := s.recipe(t, http.MethodPost, "/api/v1/recipes", gin.H{"url": "https://shop.example.com/"})
	require.NotNil(t, live)
	assert.True(t, v.Local)

	require.NotNil(t, live.intercept)
	assert.False(t, live.intercept())
	s.do(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/steps", nil)
	s.recipe(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/steps/1/selection", nil)
	assert.True(t, live.intercept())

	code, _ = s.do(t, http.MethodDelete, "/api/v1/recipes/"+v.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, live.closed)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/recipes/"+v.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRemoteSessionOverWebSocket(t *testing.T) {
	s := newServer(t, nil)
	v := s.recipe(t, http.MethodPost, "/api/v1/recipes", gin.H{"url": "https://shop.example.com/", "remote": true})
	assert.False(t, v.Local)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/recipes/" + v.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	session, err := s.manager.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return session.Relay.Listeners() == 1 }, time.Second, 10*time.Millisecond)

	s.do(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/steps", nil)
	s.recipe(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/steps/1/selection", gin.H{"tagType": "link"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	cmd, err := protocol.DecodeCommand(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.StartSelection{StepIndex: 1, TagType: models.TagLink}, cmd)

	ev, err := protocol.EncodeEvent(protocol.SelectionUpdated{
		Selector:      "div.list a.title",
		TotalSelected: 2,
		TagName:       "a",
		TagType:       models.TagLink,
		Content:       models.StringPtr("https://shop.example.com/p/1"),
		StepIndex:     1,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, ev))

	require.Eventually(t, func() bool {
		step, err := session.Editor.Step(1)
		return err == nil && step.Selector == "div.list a.title"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	code, env := s.do(t, http.MethodPost, "/api/v1/recipes/"+v.ID+"/events", json.RawMessage(`{"type":"bogus"}`))
	assert.Equal(t, http.StatusBadRequest, code, env.Message)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	s.createHTML(t)

	assert.Contains(t, s.scrape(t), "tinking_sessions_active 1")
}
