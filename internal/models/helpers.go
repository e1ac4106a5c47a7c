package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSteps             = errors.New("recipe has no steps")
	ErrMissingStartURL     = errors.New("first step has no start url")
	ErrDuplicatePagination = errors.New("recipe has more than one pagination option")
)

func ParseTagType(tagName string) TagType {
	switch strings.ToLower(tagName) {
	case "a":
		return TagLink
	case "img":
		return TagImage
	}
	return TagContainer
}

// ParseDefaultAction picks the action a freshly selected element gets.
func ParseDefaultAction(tagName string) StepAction {
	switch strings.ToLower(tagName) {
	case "a":
		return ActionNavigate
	case "img":
		return ActionExtractImageSrc
	}
	return ActionExtractText
}

// TagTypeFromAction returns the element kind a selection for action must
// snap to. Empty means any element.
func TagTypeFromAction(action StepAction) TagType {
	switch action {
	case ActionNavigate, ActionExtractHref:
		return TagLink
	case ActionExtractImageSrc:
		return TagImage
	}
	return ""
}

func IsExtraction(action StepAction) bool {
	switch action {
	case ActionExtractText, ActionExtractHref, ActionExtractImageSrc:
		return true
	}
	return false
}

// ExpectsSelector reports whether steps with action need a target element.
func ExpectsSelector(action StepAction) bool {
	return action != "" && action != ActionRecord
}

// InActionProcess reports whether the user is still busy defining the step:
// a recording with nothing captured yet, or a selection without a picked
// element.
func InActionProcess(step Step) bool {
	if step.Action == ActionRecord {
		return len(step.RecordedClicksAndKeys) == 0
	}
	return step.TagName == "" && step.Action != ""
}

// VariableName returns the user given name or the positional default.
func VariableName(step Step, idx int) string {
	if name := strings.TrimSpace(step.VariableName); name != "" {
		return name
	}
	return fmt.Sprintf("variable%d", idx)
}

// ValidateSteps checks the structural invariants a recipe must hold before
// it can be compiled.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return ErrNoSteps
	}
	if strings.TrimSpace(StartURL(steps)) == "" {
		return ErrMissingStartURL
	}
	paginations := 0
	for i, step := range steps {
		for _, opt := range step.Options {
			if _, ok := opt.(Pagination); ok {
				paginations++
			}
		}
		if paginations > 1 {
			return fmt.Errorf("step %d: %w", i, ErrDuplicatePagination)
		}
		if step.Action != "" && !step.Action.Valid() {
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
	}
	return nil
}
