package models

import (
	"encoding/json"
	"errors"
	"unicode/utf8"
)

// Recorded is one captured interaction: a MouseClick or a KeyInput.
type Recorded interface {
	isRecorded()
}

type MouseClick struct {
	Selector string
}

// KeyInput holds text typed between two clicks.
type KeyInput struct {
	Input string
}

func (MouseClick) isRecorded() {}
func (KeyInput) isRecorded()   {}

type Recording []Recorded

type recordedJSON struct {
	Selector *string `json:"selector,omitempty"`
	Input    *string `json:"input,omitempty"`
}

func (r Recording) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	out := make([]recordedJSON, 0, len(r))
	for _, item := range r {
		switch v := item.(type) {
		case MouseClick:
			out = append(out, recordedJSON{Selector: StringPtr(v.Selector)})
		case KeyInput:
			out = append(out, recordedJSON{Input: StringPtr(v.Input)})
		}
	}
	return json.Marshal(out)
}

func (r *Recording) UnmarshalJSON(data []byte) error {
	var raw []recordedJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	out := make(Recording, 0, len(raw))
	for _, item := range raw {
		switch {
		case item.Selector != nil:
			out = append(out, MouseClick{Selector: *item.Selector})
		case item.Input != nil:
			out = append(out, KeyInput{Input: *item.Input})
		default:
			return errors.New("recorded entry needs a selector or an input")
		}
	}
	*r = out
	return nil
}

// AppendClick records a click on selector.
func (r Recording) AppendClick(selector string) Recording {
	return append(r, MouseClick{Selector: selector})
}

// AppendKey merges a key press into the recording. Printable characters
// extend the trailing KeyInput, Backspace removes its last character and
// Space types a blank. Other named keys (CapsLock, Shift, Enter...) are
// dropped.
func (r Recording) AppendKey(key string) Recording {
	var text string
	switch {
	case key == "Backspace":
		if len(r) == 0 {
			return r
		}
		last, ok := r[len(r)-1].(KeyInput)
		if !ok || last.Input == "" {
			return r
		}
		_, size := utf8.DecodeLastRuneInString(last.Input)
		out := append(Recording{}, r...)
		out[len(out)-1] = KeyInput{Input: last.Input[:len(last.Input)-size]}
		return out
	case key == "Space" || key == " ":
		text = " "
	case utf8.RuneCountInString(key) == 1:
		text = key
	default:
		return r
	}

	if len(r) > 0 {
		if last, ok := r[len(r)-1].(KeyInput); ok {
			out := append(Recording{}, r...)
			out[len(out)-1] = KeyInput{Input: last.Input + text}
			return out
		}
	}
	// Named keys never open an input; typing starts with a printable key.
	if key == "Space" {
		return r
	}
	return append(r, KeyInput{Input: text})
}
