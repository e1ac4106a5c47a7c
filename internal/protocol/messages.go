// Package protocol defines the messages exchanged between the recipe editor
// and the inspected page.
package protocol

import (
	"tinking/backend/internal/models"
)

type CommandType string

const (
	CmdStartSelection     CommandType = "startSelection"
	CmdStopSelection      CommandType = "stopSelection"
	CmdFindUniqueSelector CommandType = "findUniqueSelector"
	CmdStartRecording     CommandType = "startRecording"
	CmdStopRecording      CommandType = "stopRecording"
)

// Command is sent from the editor to the page. The concrete types are
// StartSelection, StopSelection, FindUniqueSelector, StartRecording and
// StopRecording.
type Command interface {
	CommandType() CommandType
}

// StartSelection enters selection mode for a step, or for one of its
// options when OptionIndex is set. TagType restricts what can be picked.
type StartSelection struct {
	StepIndex   int            `json:"stepIndex"`
	TagType     models.TagType `json:"tagType,omitempty"`
	OptionIndex *int           `json:"optionIndex,omitempty"`
}

type StopSelection struct{}

// FindUniqueSelector asks for a selector matching only the Index-th match
// of Selector. The answer is routed back to step SelectingNodeIndex.
type FindUniqueSelector struct {
	Selector           string `json:"selector"`
	Index              int    `json:"index"`
	SelectingNodeIndex int    `json:"selectingNodeIndex"`
}

type StartRecording struct {
	StepIndex int `json:"stepIndex"`
}

type StopRecording struct {
	StepIndex int `json:"stepIndex"`
}

func (StartSelection) CommandType() CommandType     { return CmdStartSelection }
func (StopSelection) CommandType() CommandType      { return CmdStopSelection }
func (FindUniqueSelector) CommandType() CommandType { return CmdFindUniqueSelector }
func (StartRecording) CommandType() CommandType     { return CmdStartRecording }
func (StopRecording) CommandType() CommandType      { return CmdStopRecording }

type EventType string

const (
	EvtSelectionUpdated       EventType = "selectionUpdated"
	EvtUniqueSelectorResolved EventType = "uniqueSelectorResolved"
	EvtInteractionRecorded    EventType = "interactionRecorded"
)

// Event is sent from the page to the editor. The concrete types are
// SelectionUpdated, UniqueSelectorResolved and InteractionRecorded.
type Event interface {
	EventType() EventType
}

// SelectionUpdated reports the element the user picked.
type SelectionUpdated struct {
	Selector      string         `json:"selector"`
	TotalSelected int            `json:"totalSelected"`
	TagName       string         `json:"tagName"`
	TagType       models.TagType `json:"tagType"`
	Content       *string        `json:"content,omitempty"`
	StepIndex     int            `json:"stepIndex"`
	OptionIndex   *int           `json:"optionIndex,omitempty"`
}

type UniqueSelectorResolved struct {
	Selector           string `json:"selector"`
	Index              int    `json:"index"`
	SelectingNodeIndex int    `json:"selectingNodeIndex"`
}

// InteractionRecorded carries one click (Selector) or one key press (Key).
type InteractionRecorded struct {
	StepIndex int    `json:"stepIndex"`
	Selector  string `json:"selector,omitempty"`
	Key       string `json:"key,omitempty"`
}

func (SelectionUpdated) EventType() EventType       { return EvtSelectionUpdated }
func (UniqueSelectorResolved) EventType() EventType { return EvtUniqueSelectorResolved }
func (InteractionRecorded) EventType() EventType    { return EvtInteractionRecorded }

// IntPtr is a helper for optional option indexes.
func IntPtr(i int) *int {
	return &i
}

// Focus identifies which step, and which of its options, the editor is
// currently waiting on.
type Focus struct {
	StepIndex   int
	OptionIndex *int
}

// Accepts reports whether a response addressed to (stepIndex, optionIndex)
// belongs to this focus. Responses for another step, or for an option when
// the step itself is focused (and vice versa), are stale.
func (f Focus) Accepts(stepIndex int, optionIndex *int) bool {
	if f.StepIndex != stepIndex {
		return false
	}
	if f.OptionIndex == nil || optionIndex == nil {
		return f.OptionIndex == nil && optionIndex == nil
	}
	return *f.OptionIndex == *optionIndex
}
