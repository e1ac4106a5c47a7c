package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
	"tinking/backend/internal/compiler"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/inspector"
	"tinking/backend/internal/metrics"
	"tinking/backend/internal/models"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/recipe"
	"tinking/backend/internal/store"
	"tinking/backend/pkg/response"

	"github.com/gin-gonic/gin"
)

var (
	ErrNoBrowser     = errors.New("no browser configured: post the page html or open a remote session")
	ErrRemoteSession = errors.New("session has no local page")
)

// LivePage is a browser tab feeding a session.
type LivePage interface {
	Page() *dom.Page
	Intercept(fn func() bool)
	Close()
}

// PageOpener opens a live page on a URL.
type PageOpener func(ctx context.Context, pageURL string) (LivePage, error)

type Config struct {
	Manager  *recipe.Manager
	Tinks    store.TinkStore
	OpenPage PageOpener
	Metrics  *metrics.Metrics
	// Compile holds the defaults for generated scripts.
	Compile compiler.Options
	Logger  *slog.Logger
}

type Handler struct {
	manager  *recipe.Manager
	tinks    store.TinkStore
	openPage PageOpener
	metrics  *metrics.Metrics
	compile  compiler.Options
	logger   *slog.Logger
}

func New(cfg Config) *Handler {
	h := &Handler{
		manager:  cfg.Manager,
		tinks:    cfg.Tinks,
		openPage: cfg.OpenPage,
		metrics:  cfg.Metrics,
		compile:  cfg.Compile,
		logger:   cfg.Logger,
	}
	if h.compile.Driver == "" {
		h.compile.Driver = compiler.Puppeteer
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

func (h *Handler) HealthCheck(c *gin.Context) {
	response.Success(c, gin.H{
		"status":   "ok",
		"sessions": h.manager.Len(),
		"time":     time.Now().UTC(),
	})
}

// fail maps err onto the response helpers.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recipe.ErrSessionNotFound),
		errors.Is(err, store.ErrTinkNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, recipe.ErrStepIndex),
		errors.Is(err, recipe.ErrOptionIndex),
		errors.Is(err, recipe.ErrRecordIndex),
		errors.Is(err, recipe.ErrStartStepLocked),
		errors.Is(err, recipe.ErrUnknownAction),
		errors.Is(err, recipe.ErrOptionValue),
		errors.Is(err, models.ErrNoSteps),
		errors.Is(err, models.ErrMissingStartURL),
		errors.Is(err, models.ErrDuplicatePagination),
		errors.Is(err, dom.ErrInvalidSelector),
		errors.Is(err, inspector.ErrMatchIndex),
		errors.Is(err, compiler.ErrUnknownDriver),
		errors.Is(err, protocol.ErrUnknownMessage),
		errors.Is(err, ErrNoBrowser),
		errors.Is(err, ErrRemoteSession):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		response.InternalServerError(c, err.Error())
	}
}

// session resolves the :id parameter.
func (h *Handler) session(c *gin.Context) (*recipe.Session, bool) {
	s, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name+": "+c.Param(name))
		return 0, false
	}
	return v, true
}

// options merges a generate request onto the configured defaults.
func (h *Handler) options(driver, outputFilename string, headful bool) (compiler.Options, error) {
	opts := h.compile
	if driver != "" {
		d, err := compiler.ParseDriver(driver)
		if err != nil {
			return opts, err
		}
		opts.Driver = d
	}
	if outputFilename != "" {
		opts.OutputFilename = outputFilename
	}
	opts.Headful = opts.Headful || headful
	return opts, nil
}

func (h *Handler) generate(steps []models.Step, opts compiler.Options) (string, error) {
	start := time.Now()
	script, err := compiler.Compile(steps, opts)
	h.metrics.ObserveCompile(string(opts.Driver), err, time.Since(start))
	return script, err
}

type generateRequest struct {
	Driver         string `json:"driver"`
	OutputFilename string `json:"outputFilename"`
	Headful        bool   `json:"headful"`
}

type scriptView struct {
	Driver compiler.Driver `json:"driver"`
	Script string          `json:"script"`
}

// Compile compiles a posted step list without a session.
func (h *Handler) Compile(c *gin.Context) {
	var req struct {
		generateRequest
		Steps []models.Step `json:"steps" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	opts, err := h.options(req.Driver, req.OutputFilename, req.Headful)
	if err != nil {
		h.fail(c, err)
		return
	}
	script, err := h.generate(req.Steps, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, scriptView{Driver: opts.Driver, Script: script})
}

// GetTink returns the steps of a saved recipe.
func (h *Handler) GetTink(c *gin.Context) {
	steps, err := h.tinks.LoadTink(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": c.Param("id"), "steps": steps})
}
