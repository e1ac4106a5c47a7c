package handlers

import (
	"tinking/backend/internal/dom"
	"tinking/backend/internal/models"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/recipe"
	"tinking/backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type recipeView struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Local     bool            `json:"local"`
	Steps     []models.Step   `json:"steps"`
	Focus     *protocol.Focus `json:"focus,omitempty"`
	Recording *int            `json:"recording,omitempty"`
	Dropped   int             `json:"dropped"`
	// Pending lists steps still waiting for a pick or a recording.
	Pending []int               `json:"pending"`
	Actions []models.StepAction `json:"actions"`
}

func viewOf(s *recipe.Session) recipeView {
	steps := s.Editor.Steps()
	v := recipeView{
		ID:      s.ID,
		URL:     models.StartURL(steps),
		Local:   s.Local(),
		Steps:   steps,
		Dropped: s.Editor.Dropped(),
		Pending: []int{},
		Actions: models.Actions,
	}
	for i, step := range steps {
		if i > 0 && models.InActionProcess(step) {
			v.Pending = append(v.Pending, i)
		}
	}
	if f, ok := s.Editor.Focus(); ok {
		v.Focus = &f
	}
	if idx, ok := s.Editor.RecordingStep(); ok {
		v.Recording = &idx
	}
	return v
}

// CreateRecipe opens an editing session. Posted html is parsed in process,
// remote sessions wait for a page on the websocket, otherwise a live
// browser is opened on the URL.
func (h *Handler) CreateRecipe(c *gin.Context) {
	var req struct {
		URL    string `json:"url" binding:"required"`
		HTML   string `json:"html"`
		Remote bool   `json:"remote"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	switch {
	case req.HTML != "":
		page, err := dom.ParseString(req.HTML, req.URL)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		s, err := h.manager.Create(ctx, req.URL, page)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Created(c, viewOf(s))

	case req.Remote:
		s, err := h.manager.Create(ctx, req.URL, nil)
		if err != nil {
			h.fail(c, err)
			return
		}
		response.Created(c, viewOf(s))

	default:
		if h.openPage == nil {
			h.fail(c, ErrNoBrowser)
			return
		}
		live, err := h.openPage(ctx, req.URL)
		if err != nil {
			h.logger.Error("live page open failed", "url", req.URL, "error", err)
			response.BadGateway(c, err.Error())
			return
		}
		s, err := h.manager.Create(ctx, req.URL, live.Page())
		if err != nil {
			live.Close()
			h.fail(c, err)
			return
		}
		host := s.Host()
		live.Intercept(host.Selecting)
		s.OnClose(live.Close)
		response.Created(c, viewOf(s))
	}
}

func (h *Handler) GetRecipe(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, viewOf(s))
}

func (h *Handler) DeleteRecipe(c *gin.Context) {
	if err := h.manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, nil)
}

// edit runs fn on the session's editor and replies with the new state.
func (h *Handler) edit(c *gin.Context, fn func(e *recipe.Editor) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := fn(s.Editor); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, viewOf(s))
}

func (h *Handler) AddStep(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	idx, err := s.Editor.AddStep()
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"index": idx, "recipe": viewOf(s)})
}

func (h *Handler) DeleteStep(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	h.edit(c, func(e *recipe.Editor) error { return e.DeleteStep(idx) })
}

// UpdateStep applies the given fields in order: selector, action, name.
func (h *Handler) UpdateStep(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	var req struct {
		Selector     *string            `json:"selector"`
		Action       *models.StepAction `json:"action"`
		VariableName *string            `json:"variableName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.edit(c, func(e *recipe.Editor) error {
		return e.UpdateStep(idx, recipe.StepUpdate{
			Selector:     req.Selector,
			Action:       req.Action,
			VariableName: req.VariableName,
		})
	})
}

func (h *Handler) GetPreview(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	p, err := s.Editor.Preview(idx)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, p)
}

func (h *Handler) AddOption(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	opt, err := s.Editor.AddOption(idx)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"index": opt, "recipe": viewOf(s)})
}

func (h *Handler) UpdateOption(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	opt, ok := intParam(c, "option")
	if !ok {
		return
	}
	var req struct {
		Type  *models.OptionType `json:"type"`
		Value *string            `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.edit(c, func(e *recipe.Editor) error {
		if req.Type != nil {
			if err := e.SetOptionType(idx, opt, *req.Type); err != nil {
				return err
			}
		}
		if req.Value != nil {
			return e.SetOptionValue(idx, opt, *req.Value)
		}
		return nil
	})
}

func (h *Handler) DeleteOption(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	opt, ok := intParam(c, "option")
	if !ok {
		return
	}
	h.edit(c, func(e *recipe.Editor) error { return e.DeleteOption(idx, opt) })
}

// UpdateRecord replaces one recorded click or key input.
func (h *Handler) UpdateRecord(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	rec, ok := intParam(c, "record")
	if !ok {
		return
	}
	var req struct {
		Selector *string `json:"selector"`
		Input    *string `json:"input"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var entry models.Recorded
	switch {
	case req.Selector != nil && req.Input == nil:
		entry = models.MouseClick{Selector: *req.Selector}
	case req.Input != nil && req.Selector == nil:
		entry = models.KeyInput{Input: *req.Input}
	default:
		response.BadRequest(c, "exactly one of selector and input is required")
		return
	}
	h.edit(c, func(e *recipe.Editor) error { return e.SetRecord(idx, rec, entry) })
}

func (h *Handler) DeleteRecord(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	rec, ok := intParam(c, "record")
	if !ok {
		return
	}
	h.edit(c, func(e *recipe.Editor) error { return e.DeleteRecord(idx, rec) })
}

func (h *Handler) StartSelection(c *gin.Context) {
	idx, ok := intParam(c, "index")
	if !ok {
		return
	}
	var req struct {
		TagType     models.TagType `json:"tagType"`
		OptionIndex *int           `json:"optionIndex"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	h.edit(c, func(e *recipe.Editor) error { return e.StartSelection(idx, req.TagType, req.OptionIndex) })
}

func (h *Handler) StopSelection(c *gin.Context) {
	h.edit(c, func(e *recipe.Editor) error { return e.StopSelection() })
}

func (h *Handler) StopRecording(c *gin.Context) {
	h.edit(c, func(e *recipe.Editor) error { return e.StopRecording() })
}

// PostEvent feeds one page event, in its protocol envelope, to the editor.
func (h *Handler) PostEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ev, err := protocol.DecodeEvent(raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	handled, err := s.Editor.HandleEvent(ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"handled": handled, "recipe": viewOf(s)})
}

// PostInteraction replays a user interaction on a local page: the n-th
// match of selector is hovered, clicked or receives a key.
func (h *Handler) PostInteraction(c *gin.Context) {
	var req struct {
		Type     dom.EventKind `json:"type" binding:"required"`
		Selector string        `json:"selector" binding:"required"`
		Index    int           `json:"index"`
		Key      string        `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	switch req.Type {
	case dom.EventMouseMove, dom.EventClick, dom.EventKeyDown:
	default:
		response.BadRequest(c, "unknown interaction type: "+string(req.Type))
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if s.Page == nil {
		h.fail(c, ErrRemoteSession)
		return
	}
	nodes, err := s.Page.Query(req.Selector)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.Index < 0 || req.Index >= len(nodes) {
		response.BadRequest(c, "no match at index for selector "+req.Selector)
		return
	}
	s.Page.Dispatch(dom.Event{Kind: req.Type, Node: nodes[req.Index], Key: req.Key})
	response.Success(c, viewOf(s))
}

func (h *Handler) GenerateScript(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	opts, err := h.options(req.Driver, req.OutputFilename, req.Headful)
	if err != nil {
		h.fail(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	script, err := h.generate(s.Editor.Steps(), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, scriptView{Driver: opts.Driver, Script: script})
}

// SaveTink stores the session's steps as a Tink.
func (h *Handler) SaveTink(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id, err := h.tinks.SaveTink(c.Request.Context(), s.Editor.Steps())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("tink saved", "recipe", s.ID, "tink", id)
	response.Created(c, gin.H{"id": id})
}

// LoadTink replaces the session's steps with a saved Tink.
func (h *Handler) LoadTink(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	steps, err := h.tinks.LoadTink(c.Request.Context(), c.Param("tinkID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := s.Editor.Load(steps); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, viewOf(s))
}
