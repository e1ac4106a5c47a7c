package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StepAction string

const (
	ActionNavigate        StepAction = "Go to link"
	ActionExtractText     StepAction = "Extract text"
	ActionExtractHref     StepAction = "Extract link"
	ActionExtractImageSrc StepAction = "Extract image URL"
	ActionRecord          StepAction = "Record clicks and keys"
	// ActionClick only appears in recipes saved by older clients.
	ActionClick StepAction = "Click on"
)

// Actions lists the actions a user can pick for a step.
var Actions = []StepAction{
	ActionNavigate,
	ActionExtractText,
	ActionExtractHref,
	ActionExtractImageSrc,
	ActionRecord,
}

func (a StepAction) Valid() bool {
	switch a {
	case ActionNavigate, ActionExtractText, ActionExtractHref, ActionExtractImageSrc, ActionRecord, ActionClick:
		return true
	}
	return false
}

type TagType string

const (
	TagContainer TagType = "container"
	TagLink      TagType = "link"
	TagImage     TagType = "image"
)

// Step is one instruction of a recipe. Step 0 is the navigate-to-start step
// and carries the start URL in Content.
type Step struct {
	ID                    string     `json:"id"`
	Action                StepAction `json:"action,omitempty"`
	Selector              string     `json:"selector,omitempty"`
	TotalSelected         int        `json:"totalSelected,omitempty"`
	TagName               string     `json:"tagName,omitempty"`
	TagType               TagType    `json:"tagType,omitempty"`
	VariableName          string     `json:"variableName,omitempty"`
	Content               *string    `json:"content,omitempty"`
	Options               Options    `json:"options"`
	RecordedClicksAndKeys Recording  `json:"recordedClicksAndKeys"`
}

// NewStep returns an empty step with a fresh id.
func NewStep() Step {
	return Step{
		ID:      uuid.New().String(),
		Options: Options{},
	}
}

// NewStartStep returns the navigate-to-start step for pageURL.
func NewStartStep(pageURL string) Step {
	step := NewStep()
	step.Action = ActionNavigate
	step.Content = StringPtr(pageURL)
	return step
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	if s.Content != nil {
		out.Content = StringPtr(*s.Content)
	}
	if s.Options != nil {
		out.Options = append(Options{}, s.Options...)
	}
	if s.RecordedClicksAndKeys != nil {
		out.RecordedClicksAndKeys = append(Recording{}, s.RecordedClicksAndKeys...)
	}
	return out
}

// CloneSteps deep copies a step list.
func CloneSteps(steps []Step) []Step {
	if steps == nil {
		return nil
	}
	out := make([]Step, len(steps))
	for i, step := range steps {
		out[i] = step.Clone()
	}
	return out
}

func StringPtr(s string) *string {
	return &s
}

// StartURL returns the content of step 0, or "" when the list is empty.
func StartURL(steps []Step) string {
	if len(steps) == 0 || steps[0].Content == nil {
		return ""
	}
	return *steps[0].Content
}

type BaseModel struct {
	ID        string         `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Tink is a saved recipe.
type Tink struct {
	BaseModel
	Website string `json:"website" gorm:"size:2048"`
	Steps   string `json:"steps" gorm:"type:longtext"` // JSON format
}

// Draft is the autosaved step list of an editing session.
type Draft struct {
	SessionID string    `json:"session_id" gorm:"primaryKey;size:36"`
	Steps     string    `json:"steps" gorm:"type:longtext"` // JSON format
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tink) GetSteps() ([]Step, error) {
	return decodeSteps(t.Steps)
}

func (t *Tink) SetSteps(steps []Step) error {
	raw, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	t.Steps = string(raw)
	t.Website = StartURL(steps)
	return nil
}

func (d *Draft) GetSteps() ([]Step, error) {
	return decodeSteps(d.Steps)
}

func (d *Draft) SetSteps(steps []Step) error {
	raw, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	d.Steps = string(raw)
	return nil
}

func decodeSteps(raw string) ([]Step, error) {
	var steps []Step
	if raw == "" {
		return steps, nil
	}
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}
