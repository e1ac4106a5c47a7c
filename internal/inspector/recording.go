package inspector

import (
	"sync"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/selector"

	"github.com/PuerkitoBio/goquery"
)

// RecordingSession captures clicks and key presses for a record step.
type RecordingSession struct {
	mu        sync.Mutex
	page      *dom.Page
	stepIndex int
	emit      Emitter
	listeners []dom.ListenerID
	active    bool
}

func StartRecording(page *dom.Page, stepIndex int, emit Emitter) *RecordingSession {
	r := &RecordingSession{
		page:      page,
		stepIndex: stepIndex,
		emit:      emit,
		active:    true,
	}
	r.listeners = []dom.ListenerID{
		page.AddListener(dom.EventClick, r.onClick),
		page.AddListener(dom.EventKeyDown, r.onKey),
	}
	return r
}

func (r *RecordingSession) StepIndex() int {
	return r.stepIndex
}

func (r *RecordingSession) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *RecordingSession) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	ids := r.listeners
	r.listeners = nil
	r.mu.Unlock()

	for _, id := range ids {
		r.page.RemoveListener(id)
	}
}

func (r *RecordingSession) onClick(ev dom.Event) {
	if !r.Active() || ev.Node == nil || dom.InOverlay(ev.Node) {
		return
	}
	var (
		sel string
		err error
	)
	r.page.Inspect(func(doc *goquery.Document) {
		sel, err = selector.Unique(doc, ev.Node)
	})
	if err != nil {
		return
	}
	r.emit(protocol.InteractionRecorded{StepIndex: r.stepIndex, Selector: sel})
}

func (r *RecordingSession) onKey(ev dom.Event) {
	if !r.Active() || ev.Key == "" {
		return
	}
	if ev.Node != nil && dom.InOverlay(ev.Node) {
		return
	}
	r.emit(protocol.InteractionRecorded{StepIndex: r.stepIndex, Key: ev.Key})
}
