// Package inspector runs on the inspected page: it executes editor commands
// and reports picks, unique selectors and recorded interactions back.
package inspector

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"tinking/backend/internal/dom"
	"tinking/backend/internal/protocol"
	"tinking/backend/internal/selector"

	"github.com/PuerkitoBio/goquery"
)

var ErrMatchIndex = errors.New("inspector: no match at index")

// Host owns the page side state. At most one selection session and one
// recording session exist at a time.
type Host struct {
	mu        sync.Mutex
	page      *dom.Page
	emit      Emitter
	logger    *slog.Logger
	selection *SelectionSession
	recording *RecordingSession
}

func NewHost(page *dom.Page, emit Emitter, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{page: page, emit: emit, logger: logger}
}

func (h *Host) Page() *dom.Page {
	return h.page
}

// Handle executes one command. Events produced by the command are emitted
// after the host lock is released, so an emitter may call back into Handle.
func (h *Host) Handle(cmd protocol.Command) error {
	var pending []protocol.Event

	h.mu.Lock()
	switch c := cmd.(type) {
	case protocol.StartSelection:
		h.stopSelectionLocked()
		h.stopRecordingLocked()
		target := protocol.Focus{StepIndex: c.StepIndex, OptionIndex: c.OptionIndex}
		h.selection = StartSelection(h.page, target, c.TagType, h.emit)
		h.logger.Debug("selection started", "step", c.StepIndex, "tag_type", c.TagType)
	case protocol.StopSelection:
		h.stopSelectionLocked()
		h.page.ClearMarks()
	case protocol.FindUniqueSelector:
		ev, err := h.findUnique(c)
		if err != nil {
			h.mu.Unlock()
			return err
		}
		pending = append(pending, ev)
	case protocol.StartRecording:
		h.stopSelectionLocked()
		h.stopRecordingLocked()
		h.recording = StartRecording(h.page, c.StepIndex, h.emit)
		h.logger.Debug("recording started", "step", c.StepIndex)
	case protocol.StopRecording:
		h.stopRecordingLocked()
	default:
		h.mu.Unlock()
		return fmt.Errorf("inspector: unsupported command %T", cmd)
	}
	h.mu.Unlock()

	for _, ev := range pending {
		h.emit(ev)
	}
	return nil
}

// Selecting reports whether selection mode is on.
func (h *Host) Selecting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selection != nil && h.selection.Active()
}

func (h *Host) Recording() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recording != nil && h.recording.Active()
}

// Close ends every session.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopSelectionLocked()
	h.stopRecordingLocked()
	h.page.ClearMarks()
}

func (h *Host) stopSelectionLocked() {
	if h.selection != nil {
		h.selection.Stop()
		h.selection = nil
	}
}

func (h *Host) stopRecordingLocked() {
	if h.recording != nil {
		h.recording.Stop()
		h.recording = nil
	}
}

func (h *Host) findUnique(c protocol.FindUniqueSelector) (protocol.Event, error) {
	nodes, err := h.page.Query(c.Selector)
	if err != nil {
		return nil, err
	}
	if c.Index < 0 || c.Index >= len(nodes) {
		return nil, fmt.Errorf("%w %d of %q (%d matches)", ErrMatchIndex, c.Index, c.Selector, len(nodes))
	}
	var sel string
	h.page.Inspect(func(doc *goquery.Document) {
		sel, err = selector.Unique(doc, nodes[c.Index])
	})
	if err != nil {
		return nil, err
	}
	h.page.ClearMarks()
	h.page.Mark(nodes[c.Index : c.Index+1])
	return protocol.UniqueSelectorResolved{
		Selector:           sel,
		Index:              c.Index,
		SelectingNodeIndex: c.SelectingNodeIndex,
	}, nil
}
