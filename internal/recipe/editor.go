// Package recipe holds the control panel side of a recipe: the editable
// step list, the commands sent to the inspected page and the handling of
// the events it sends back.
package recipe

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"tinking/backend/internal/compiler"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/models"
	"tinking/backend/internal/protocol"

	"github.com/google/uuid"
)

var (
	ErrStepIndex       = errors.New("recipe: step index out of range")
	ErrStartStepLocked = errors.New("recipe: the start step cannot be changed")
	ErrOptionIndex     = errors.New("recipe: option index out of range")
	ErrRecordIndex     = errors.New("recipe: recorded entry index out of range")
	ErrUnknownAction   = errors.New("recipe: unknown action")
	ErrOptionValue     = errors.New("recipe: option takes no value")
)

// onlyThis matches a typed selector ending in "[n]", which asks for a
// unique selector of the n-th (0-based) match.
var onlyThis = regexp.MustCompile(`^(.*?)\s*\[(\d+)\]\s*$`)

// Page is the part of the inspected page the editor reads directly. It is
// nil when the page lives elsewhere and is only reachable through commands.
type Page interface {
	Count(selector string) (int, error)
	TagName(selector string) (string, error)
	Content(kind dom.ContentKind, selector string) *string
	Highlight(selector string) (int, error)
}

// Sender delivers commands to the inspected page.
type Sender interface {
	Send(cmd protocol.Command) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(cmd protocol.Command) error

func (f SenderFunc) Send(cmd protocol.Command) error {
	return f(cmd)
}

// Observer is told about events the editor discards.
type Observer interface {
	EventDropped(kind protocol.EventType)
}

type nopObserver struct{}

func (nopObserver) EventDropped(protocol.EventType) {}

type Config struct {
	ID       string
	StartURL string
	// Steps restores a saved draft; it wins over StartURL when set.
	Steps  []models.Step
	Page   Page
	Sender Sender
	// SaveDraft receives the latest steps after DebounceWindow without edits.
	SaveDraft      func(steps []models.Step)
	DebounceWindow time.Duration
	Observer       Observer
	Logger         *slog.Logger
}

// Editor owns one step list. All methods are safe for concurrent use;
// commands are sent after the editor lock is released so a synchronous
// page may answer straight into HandleEvent.
type Editor struct {
	mu         sync.Mutex
	id         string
	steps      []models.Step
	focus      *protocol.Focus
	recording  int // step being recorded, 0 when none
	unique     string // id of the step waiting for a unique selector
	page       Page
	sender     Sender
	drafts     *debouncer
	observer   Observer
	logger     *slog.Logger
	lastActive time.Time
	dropped    int
	closed     bool
}

func NewEditor(cfg Config) *Editor {
	steps := withIDs(models.CloneSteps(cfg.Steps))
	if len(steps) == 0 {
		steps = []models.Step{models.NewStartStep(cfg.StartURL)}
	}
	e := &Editor{
		id:         cfg.ID,
		steps:      steps,
		page:       cfg.Page,
		sender:     cfg.Sender,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		lastActive: time.Now(),
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if cfg.SaveDraft != nil {
		e.drafts = newDebouncer(cfg.DebounceWindow, cfg.SaveDraft)
	}
	return e
}

func (e *Editor) ID() string {
	return e.id
}

// batch collects what an edit wants to happen once the lock is released.
type batch struct {
	cmds  []protocol.Command
	dirty bool
}

func (b *batch) send(cmd protocol.Command) {
	b.cmds = append(b.cmds, cmd)
}

func (e *Editor) apply(fn func(b *batch) error) error {
	var b batch
	var snapshot []models.Step

	e.mu.Lock()
	err := fn(&b)
	if err == nil {
		e.lastActive = time.Now()
		if b.dirty {
			snapshot = models.CloneSteps(e.steps)
		}
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if snapshot != nil && e.drafts != nil {
		e.drafts.add(snapshot)
	}
	return e.dispatch(b.cmds)
}

func (e *Editor) dispatch(cmds []protocol.Command) error {
	if e.sender == nil {
		return nil
	}
	var errs []error
	for _, cmd := range cmds {
		if err := e.sender.Send(cmd); err != nil {
			e.logger.Warn("command not delivered", "recipe", e.id, "command", cmd.CommandType(), "error", err)
			errs = append(errs, fmt.Errorf("recipe: send %s: %w", cmd.CommandType(), err))
		}
	}
	return errors.Join(errs...)
}

// Steps returns a copy of the step list.
func (e *Editor) Steps() []models.Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneSteps(e.steps)
}

func (e *Editor) Step(idx int) (models.Step, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx < 0 || idx >= len(e.steps) {
		return models.Step{}, fmt.Errorf("%w: %d", ErrStepIndex, idx)
	}
	return e.steps[idx].Clone(), nil
}

// Focus returns what the current selection is for, if any.
func (e *Editor) Focus() (protocol.Focus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.focus == nil {
		return protocol.Focus{}, false
	}
	return *e.focus, true
}

// RecordingStep returns the step being recorded, if any.
func (e *Editor) RecordingStep() (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording, e.recording > 0
}

func (e *Editor) LastActive() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

// Dropped is the number of stale or misaddressed events discarded so far.
func (e *Editor) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// editable returns the step at idx, refusing the start step.
func (e *Editor) editable(idx int) (*models.Step, error) {
	if idx < 0 || idx >= len(e.steps) {
		return nil, fmt.Errorf("%w: %d", ErrStepIndex, idx)
	}
	if idx == 0 {
		return nil, ErrStartStepLocked
	}
	return &e.steps[idx], nil
}

func (e *Editor) stopSelectionLocked(b *batch) {
	if e.focus == nil {
		return
	}
	e.focus = nil
	b.send(protocol.StopSelection{})
}

func (e *Editor) stopRecordingLocked(b *batch) {
	if e.recording == 0 {
		return
	}
	b.send(protocol.StopRecording{StepIndex: e.recording})
	e.recording = 0
}

func (e *Editor) startSelectionLocked(b *batch, idx int, tagType models.TagType, optionIndex *int) {
	e.stopSelectionLocked(b)
	e.stopRecordingLocked(b)
	e.focus = &protocol.Focus{StepIndex: idx, OptionIndex: optionIndex}
	b.send(protocol.StartSelection{StepIndex: idx, TagType: tagType, OptionIndex: optionIndex})
}

// AddStep appends an empty step and returns its index.
func (e *Editor) AddStep() (int, error) {
	var idx int
	err := e.apply(func(b *batch) error {
		e.steps = append(e.steps, models.NewStep())
		idx = len(e.steps) - 1
		b.dirty = true
		return nil
	})
	return idx, err
}

// DeleteStep removes a step. Any selection or recording in progress ends,
// since the indexes it is addressed by shift.
func (e *Editor) DeleteStep(idx int) error {
	return e.apply(func(b *batch) error {
		if _, err := e.editable(idx); err != nil {
			return err
		}
		e.stopSelectionLocked(b)
		e.stopRecordingLocked(b)
		e.unique = ""
		e.steps = append(e.steps[:idx], e.steps[idx+1:]...)
		b.dirty = true
		return nil
	})
}

// StartSelection enters selection mode for a step, or for one of its
// options when optionIndex is set.
func (e *Editor) StartSelection(idx int, tagType models.TagType, optionIndex *int) error {
	return e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		if optionIndex != nil && (*optionIndex < 0 || *optionIndex >= len(step.Options)) {
			return fmt.Errorf("%w: %d", ErrOptionIndex, *optionIndex)
		}
		e.startSelectionLocked(b, idx, tagType, optionIndex)
		return nil
	})
}

// StopSelection leaves selection mode. The page is told even when the
// editor thinks nothing is selecting, so highlights never outlive it.
func (e *Editor) StopSelection() error {
	return e.apply(func(b *batch) error {
		e.focus = nil
		b.send(protocol.StopSelection{})
		return nil
	})
}

// StopRecording ends the recording session, if any.
func (e *Editor) StopRecording() error {
	return e.apply(func(b *batch) error {
		e.stopRecordingLocked(b)
		return nil
	})
}

// SetSelector applies a typed selector. A trailing "[n]" asks the page for
// a unique selector of the n-th match instead. Invalid selectors and
// selectors matching nothing reset the derived fields.
func (e *Editor) SetSelector(idx int, raw string) error {
	return e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		b.dirty = true
		e.unique = ""
		sel := strings.TrimSpace(raw)
		step.Selector = sel
		if sel == "" {
			return nil
		}

		nth := -1
		if m := onlyThis.FindStringSubmatch(sel); m != nil {
			n, err := strconv.Atoi(m[2])
			if err == nil {
				sel, nth = m[1], n
				step.Selector = sel
			}
		}

		if e.page == nil {
			if nth >= 0 {
				e.unique = step.ID
				b.send(protocol.FindUniqueSelector{Selector: sel, Index: nth, SelectingNodeIndex: idx})
			}
			return nil
		}

		count, err := e.page.Count(sel)
		if err != nil || count == 0 {
			resetDerived(step)
			return nil
		}
		if nth >= 0 {
			e.unique = step.ID
			b.send(protocol.FindUniqueSelector{Selector: sel, Index: nth, SelectingNodeIndex: idx})
			return nil
		}

		tag, _ := e.page.TagName(sel)
		step.TotalSelected = count
		step.TagName = tag
		step.TagType = models.ParseTagType(tag)
		step.Action = models.ParseDefaultAction(tag)
		step.Content = e.page.Content(dom.KindFor(step.Action), sel)
		if _, err := e.page.Highlight(sel); err != nil {
			e.logger.Debug("highlight failed", "recipe", e.id, "selector", sel, "error", err)
		}
		return nil
	})
}

// withIDs gives steps saved without an id a fresh one.
func withIDs(steps []models.Step) []models.Step {
	for i := range steps {
		if steps[i].ID == "" {
			steps[i].ID = uuid.New().String()
		}
	}
	return steps
}

func resetDerived(step *models.Step) {
	step.TotalSelected = 0
	step.TagName = ""
	step.TagType = ""
	step.Action = ""
	step.Content = nil
}

// SetAction changes the action of a step. Recording starts a recording
// session; an action that needs an element on a step without a selector
// starts selection; anything else refreshes the content preview.
func (e *Editor) SetAction(idx int, action models.StepAction) error {
	return e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		if action != "" && !action.Valid() {
			return fmt.Errorf("%w %q", ErrUnknownAction, action)
		}
		b.dirty = true
		if e.recording == idx && action != models.ActionRecord {
			e.stopRecordingLocked(b)
		}

		step.Action = action
		switch {
		case action == models.ActionRecord:
			step.RecordedClicksAndKeys = models.Recording{}
			e.stopSelectionLocked(b)
			e.stopRecordingLocked(b)
			e.recording = idx
			b.send(protocol.StartRecording{StepIndex: idx})
		case step.Selector == "" && models.ExpectsSelector(action):
			step.RecordedClicksAndKeys = nil
			e.startSelectionLocked(b, idx, models.TagTypeFromAction(action), nil)
		default:
			step.RecordedClicksAndKeys = nil
			if e.page != nil && step.Selector != "" {
				step.Content = e.page.Content(dom.KindFor(action), step.Selector)
			}
		}
		return nil
	})
}

// StepUpdate holds the fields of one step edit. Nil fields are left alone.
type StepUpdate struct {
	Selector     *string
	Action       *models.StepAction
	VariableName *string
}

// UpdateStep applies selector, action and name in that order. The index and
// the action are checked before anything changes.
func (e *Editor) UpdateStep(idx int, u StepUpdate) error {
	e.mu.Lock()
	_, err := e.editable(idx)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if u.Action != nil && *u.Action != "" && !u.Action.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownAction, *u.Action)
	}

	if u.Selector != nil {
		if err := e.SetSelector(idx, *u.Selector); err != nil {
			return err
		}
	}
	if u.Action != nil {
		if err := e.SetAction(idx, *u.Action); err != nil {
			return err
		}
	}
	if u.VariableName != nil {
		return e.SetVariableName(idx, *u.VariableName)
	}
	return nil
}

func (e *Editor) SetVariableName(idx int, name string) error {
	return e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		step.VariableName = strings.TrimSpace(name)
		b.dirty = true
		return nil
	})
}

// AddOption appends an option slot whose type is not chosen yet.
func (e *Editor) AddOption(idx int) (int, error) {
	var opt int
	err := e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		step.Options = append(step.Options, models.PendingOption{})
		opt = len(step.Options) - 1
		b.dirty = true
		return nil
	})
	return opt, err
}

func (e *Editor) option(idx, opt int) (*models.Step, error) {
	step, err := e.editable(idx)
	if err != nil {
		return nil, err
	}
	if opt < 0 || opt >= len(step.Options) {
		return nil, fmt.Errorf("%w: %d", ErrOptionIndex, opt)
	}
	return step, nil
}

// SetOptionType picks the type of an option, clearing its value. Choosing
// Pagination starts selection of the next page control.
func (e *Editor) SetOptionType(idx, opt int, typ models.OptionType) error {
	return e.apply(func(b *batch) error {
		step, err := e.option(idx, opt)
		if err != nil {
			return err
		}
		next, err := models.NewOption(typ, "")
		if err != nil {
			return fmt.Errorf("recipe: %w", err)
		}
		if typ == models.OptionPagination && e.paginationElsewhere(idx, opt) {
			return models.ErrDuplicatePagination
		}
		if e.focusedOn(idx, opt) {
			e.stopSelectionLocked(b)
		}
		step.Options[opt] = next
		b.dirty = true
		if typ == models.OptionPagination {
			e.startSelectionLocked(b, idx, "", protocol.IntPtr(opt))
		}
		return nil
	})
}

func (e *Editor) paginationElsewhere(idx, opt int) bool {
	for i, s := range e.steps {
		for j, o := range s.Options {
			if _, ok := o.(models.Pagination); ok && !(i == idx && j == opt) {
				return true
			}
		}
	}
	return false
}

func (e *Editor) focusedOn(idx, opt int) bool {
	return e.focus != nil && e.focus.Accepts(idx, &opt)
}

// SetOptionValue sets the value of a valued option. Typing a value ends an
// option selection in progress.
func (e *Editor) SetOptionValue(idx, opt int, value string) error {
	return e.apply(func(b *batch) error {
		step, err := e.option(idx, opt)
		if err != nil {
			return err
		}
		switch step.Options[opt].(type) {
		case models.Pagination, models.RegexExtract, models.CustomAmount:
		default:
			return fmt.Errorf("%w: %q", ErrOptionValue, step.Options[opt].OptionType())
		}
		if e.focusedOn(idx, opt) {
			e.stopSelectionLocked(b)
		}
		step.Options[opt] = models.WithValue(step.Options[opt], value)
		b.dirty = true
		return nil
	})
}

// DeleteOption removes an option. A selection for any option of the step
// ends, since option indexes shift.
func (e *Editor) DeleteOption(idx, opt int) error {
	return e.apply(func(b *batch) error {
		step, err := e.option(idx, opt)
		if err != nil {
			return err
		}
		if e.focus != nil && e.focus.StepIndex == idx && e.focus.OptionIndex != nil {
			e.stopSelectionLocked(b)
		}
		step.Options = append(step.Options[:opt], step.Options[opt+1:]...)
		b.dirty = true
		return nil
	})
}

// SetRecord replaces one recorded entry.
func (e *Editor) SetRecord(idx, rec int, entry models.Recorded) error {
	return e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		if rec < 0 || rec >= len(step.RecordedClicksAndKeys) {
			return fmt.Errorf("%w: %d", ErrRecordIndex, rec)
		}
		step.RecordedClicksAndKeys[rec] = entry
		b.dirty = true
		return nil
	})
}

func (e *Editor) DeleteRecord(idx, rec int) error {
	return e.apply(func(b *batch) error {
		step, err := e.editable(idx)
		if err != nil {
			return err
		}
		if rec < 0 || rec >= len(step.RecordedClicksAndKeys) {
			return fmt.Errorf("%w: %d", ErrRecordIndex, rec)
		}
		r := step.RecordedClicksAndKeys
		step.RecordedClicksAndKeys = append(r[:rec], r[rec+1:]...)
		b.dirty = true
		return nil
	})
}

// Preview is what the panel shows under a step.
type Preview struct {
	Content   *string `json:"content,omitempty"`
	Formatted *string `json:"formatted,omitempty"`
	// RegexValid is set when the step has a regex option.
	RegexValid *bool `json:"regexValid,omitempty"`
}

// Preview returns the content of a step after its regex option, if any.
func (e *Editor) Preview(idx int) (Preview, error) {
	step, err := e.Step(idx)
	if err != nil {
		return Preview{}, err
	}
	p := Preview{Content: step.Content, Formatted: step.Content}
	pattern, ok := step.Options.Regex()
	if !ok || pattern == "" {
		return p, nil
	}
	valid := ValidRegex(pattern)
	p.RegexValid = &valid
	if step.Content != nil {
		formatted, _ := ApplyRegex(*step.Content, pattern)
		p.Formatted = &formatted
	}
	return p, nil
}

// HandleEvent applies an event from the page. Events that do not match the
// current focus are dropped and counted; handled reports whether the event
// changed anything.
func (e *Editor) HandleEvent(ev protocol.Event) (handled bool, err error) {
	err = e.apply(func(b *batch) error {
		switch v := ev.(type) {
		case protocol.SelectionUpdated:
			handled = e.onSelection(b, v)
		case protocol.UniqueSelectorResolved:
			handled = e.onUnique(v)
		case protocol.InteractionRecorded:
			handled = e.onInteraction(v)
		default:
			return fmt.Errorf("recipe: unsupported event %T", ev)
		}
		if handled {
			b.dirty = true
			return nil
		}
		e.dropped++
		return nil
	})
	if err == nil && !handled {
		e.observer.EventDropped(ev.EventType())
		e.logger.Debug("stale event dropped", "recipe", e.id, "event", ev.EventType())
	}
	return handled, err
}

func (e *Editor) onSelection(b *batch, ev protocol.SelectionUpdated) bool {
	if e.focus == nil || !e.focus.Accepts(ev.StepIndex, ev.OptionIndex) {
		return false
	}
	step, err := e.editable(ev.StepIndex)
	if err != nil {
		return false
	}

	if ev.OptionIndex != nil {
		opt := *ev.OptionIndex
		if opt < 0 || opt >= len(step.Options) {
			return false
		}
		step.Options[opt] = models.WithValue(step.Options[opt], ev.Selector)
		e.stopSelectionLocked(b)
		return true
	}

	step.Selector = ev.Selector
	step.TotalSelected = ev.TotalSelected
	step.TagName = ev.TagName
	step.TagType = models.ParseTagType(ev.TagName)
	if step.Action == "" || step.Action == models.ActionRecord {
		step.Action = models.ParseDefaultAction(ev.TagName)
		step.RecordedClicksAndKeys = nil
	}
	step.Content = ev.Content
	if e.page != nil && ev.Selector != "" {
		step.Content = e.page.Content(dom.KindFor(step.Action), ev.Selector)
	}
	return true
}

// onUnique accepts only the answer to the request still in flight, matched by
// step id so a shifted list never receives it.
func (e *Editor) onUnique(ev protocol.UniqueSelectorResolved) bool {
	step, err := e.editable(ev.SelectingNodeIndex)
	if err != nil || ev.Selector == "" || e.unique == "" || step.ID != e.unique {
		return false
	}
	e.unique = ""
	step.Selector = ev.Selector
	if e.page == nil {
		step.TotalSelected = 1
		return true
	}
	count, err := e.page.Count(ev.Selector)
	if err != nil || count == 0 {
		resetDerived(step)
		return true
	}
	tag, _ := e.page.TagName(ev.Selector)
	step.TotalSelected = count
	step.TagName = tag
	step.TagType = models.ParseTagType(tag)
	if step.Action == "" {
		step.Action = models.ParseDefaultAction(tag)
	}
	step.Content = e.page.Content(dom.KindFor(step.Action), ev.Selector)
	return true
}

func (e *Editor) onInteraction(ev protocol.InteractionRecorded) bool {
	if e.recording == 0 || e.recording != ev.StepIndex {
		return false
	}
	step, err := e.editable(ev.StepIndex)
	if err != nil || step.Action != models.ActionRecord {
		return false
	}
	if ev.Selector != "" {
		step.RecordedClicksAndKeys = step.RecordedClicksAndKeys.AppendClick(ev.Selector)
		return true
	}
	if ev.Key == "" {
		return false
	}
	step.RecordedClicksAndKeys = step.RecordedClicksAndKeys.AppendKey(ev.Key)
	return true
}

// Load replaces the step list, typically with a saved Tink.
func (e *Editor) Load(steps []models.Step) error {
	if err := models.ValidateSteps(steps); err != nil {
		return fmt.Errorf("recipe: load: %w", err)
	}
	return e.apply(func(b *batch) error {
		e.stopSelectionLocked(b)
		e.stopRecordingLocked(b)
		e.unique = ""
		e.steps = withIDs(models.CloneSteps(steps))
		b.dirty = true
		return nil
	})
}

// Generate compiles the current steps.
func (e *Editor) Generate(opts compiler.Options) (string, error) {
	return compiler.Compile(e.Steps(), opts)
}

// Close ends every session on the page and writes the pending draft.
func (e *Editor) Close() error {
	err := e.apply(func(b *batch) error {
		if e.closed {
			return nil
		}
		e.closed = true
		e.stopSelectionLocked(b)
		e.stopRecordingLocked(b)
		return nil
	})
	if e.drafts != nil {
		e.drafts.close()
	}
	return err
}
