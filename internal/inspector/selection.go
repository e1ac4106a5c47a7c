package inspector

import (
	"sync"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/models"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/selector"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Emitter delivers events to the editor.
type Emitter func(protocol.Event)

// SelectionSession is one run of selection mode. It owns its page
// listeners and the highlight it draws; Stop releases both.
type SelectionSession struct {
	mu        sync.Mutex
	page      *dom.Page
	target    protocol.Focus
	tagType   models.TagType
	emit      Emitter
	listeners []dom.ListenerID
	hovered   *html.Node
	active    bool
}

// StartSelection subscribes to hover and click events on page. Picks are
// reported to emit addressed to target.
func StartSelection(page *dom.Page, target protocol.Focus, tagType models.TagType, emit Emitter) *SelectionSession {
	s := &SelectionSession{
		page:    page,
		target:  target,
		tagType: tagType,
		emit:    emit,
		active:  true,
	}
	s.listeners = []dom.ListenerID{
		page.AddListener(dom.EventMouseMove, s.onMove),
		page.AddListener(dom.EventClick, s.onClick),
	}
	return s
}

// Target returns the step/option the session picks for.
func (s *SelectionSession) Target() protocol.Focus {
	return s.target
}

func (s *SelectionSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop unsubscribes the listeners and removes every highlight. It is safe
// to call more than once.
func (s *SelectionSession) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	ids := s.listeners
	s.listeners = nil
	s.hovered = nil
	s.mu.Unlock()

	for _, id := range ids {
		s.page.RemoveListener(id)
	}
	s.page.ClearMarks()
}

// pick resolves the event target to the element the session may select,
// or nil when the target is part of the control panel or does not fit the
// tag filter.
func (s *SelectionSession) pick(node *html.Node) *html.Node {
	if node == nil || node.Type != html.ElementNode || dom.InOverlay(node) {
		return nil
	}
	switch s.tagType {
	case models.TagLink:
		return dom.Closest(node, "a")
	case models.TagImage:
		return dom.Closest(node, "img")
	}
	return node
}

func (s *SelectionSession) onMove(ev dom.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	target := s.pick(ev.Node)
	if target == nil || target == s.hovered {
		return
	}
	s.hovered = target
	s.highlight(target)
}

func (s *SelectionSession) onClick(ev dom.Event) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	target := s.pick(ev.Node)
	if target == nil {
		s.mu.Unlock()
		return
	}
	s.hovered = target
	update := s.highlight(target)
	s.mu.Unlock()

	s.emit(update)
}

// highlight marks all matches of target's context selector and describes
// the selection.
func (s *SelectionSession) highlight(target *html.Node) protocol.SelectionUpdated {
	var sel string
	s.page.Inspect(func(*goquery.Document) {
		sel = selector.Context(target)
	})
	total, err := s.page.Highlight(sel)
	if err != nil {
		total = 0
	}
	tag := target.Data
	return protocol.SelectionUpdated{
		Selector:      sel,
		TotalSelected: total,
		TagName:       tag,
		TagType:       models.ParseTagType(tag),
		Content:       s.page.NodeContent(dom.KindFor(models.ParseDefaultAction(tag)), target),
		StepIndex:     s.target.StepIndex,
		OptionIndex:   s.target.OptionIndex,
	}
}
