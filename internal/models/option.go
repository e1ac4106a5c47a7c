package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type OptionType string

const (
	OptionInfiniteScroll OptionType = "Infinite Scroll"
	OptionPagination     OptionType = "Pagination"
	OptionRegex          OptionType = "Regex"
	OptionCustomAmount   OptionType = "Custom amount to extract"
)

// StepOption modifies how a step is compiled. The concrete types are
// InfiniteScroll, Pagination, RegexExtract, CustomAmount and PendingOption.
type StepOption interface {
	OptionType() OptionType
	OptionValue() string
	isStepOption()
}

type InfiniteScroll struct{}

// Pagination names the control clicked to reach the next result page.
type Pagination struct {
	NextSelector string
}

type RegexExtract struct {
	Pattern string
}

// CustomAmount caps how many matches are extracted. Value is an integer
// kept as entered.
type CustomAmount struct {
	Value string
}

// PendingOption is a slot the user added but has not picked a type for yet.
type PendingOption struct{}

func (InfiniteScroll) OptionType() OptionType { return OptionInfiniteScroll }
func (Pagination) OptionType() OptionType     { return OptionPagination }
func (RegexExtract) OptionType() OptionType   { return OptionRegex }
func (CustomAmount) OptionType() OptionType   { return OptionCustomAmount }
func (PendingOption) OptionType() OptionType  { return "" }

func (InfiniteScroll) OptionValue() string { return "" }
func (o Pagination) OptionValue() string   { return o.NextSelector }
func (o RegexExtract) OptionValue() string { return o.Pattern }
func (o CustomAmount) OptionValue() string { return o.Value }
func (PendingOption) OptionValue() string  { return "" }

func (InfiniteScroll) isStepOption() {}
func (Pagination) isStepOption()     {}
func (RegexExtract) isStepOption()   {}
func (CustomAmount) isStepOption()   {}
func (PendingOption) isStepOption()  {}

// Limit parses the amount. It reports false for empty, malformed or
// non-positive values.
func (o CustomAmount) Limit() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(o.Value))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// NewOption builds an option of the given type carrying value.
func NewOption(t OptionType, value string) (StepOption, error) {
	switch t {
	case "":
		return PendingOption{}, nil
	case OptionInfiniteScroll:
		return InfiniteScroll{}, nil
	case OptionPagination:
		return Pagination{NextSelector: value}, nil
	case OptionRegex:
		return RegexExtract{Pattern: value}, nil
	case OptionCustomAmount:
		return CustomAmount{Value: value}, nil
	}
	return nil, fmt.Errorf("unknown option type %q", t)
}

// WithValue returns a copy of opt carrying value.
func WithValue(opt StepOption, value string) StepOption {
	switch o := opt.(type) {
	case Pagination:
		o.NextSelector = value
		return o
	case RegexExtract:
		o.Pattern = value
		return o
	case CustomAmount:
		o.Value = value
		return o
	}
	return opt
}

type Options []StepOption

type optionJSON struct {
	Type  OptionType `json:"type"`
	Value string     `json:"value,omitempty"`
}

func (o Options) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	out := make([]*optionJSON, len(o))
	for i, opt := range o {
		if opt == nil {
			continue
		}
		if _, pending := opt.(PendingOption); pending {
			continue
		}
		out[i] = &optionJSON{Type: opt.OptionType(), Value: opt.OptionValue()}
	}
	return json.Marshal(out)
}

func (o *Options) UnmarshalJSON(data []byte) error {
	var raw []*optionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*o = nil
		return nil
	}
	out := make(Options, len(raw))
	for i, item := range raw {
		if item == nil {
			out[i] = PendingOption{}
			continue
		}
		opt, err := NewOption(item.Type, item.Value)
		if err != nil {
			return err
		}
		out[i] = opt
	}
	*o = out
	return nil
}

// Find returns the first option of type t.
func (o Options) Find(t OptionType) (StepOption, bool) {
	for _, opt := range o {
		if opt != nil && opt.OptionType() == t {
			return opt, true
		}
	}
	return nil, false
}

func (o Options) Has(t OptionType) bool {
	_, ok := o.Find(t)
	return ok
}

// Regex returns the pattern of the first regex option.
func (o Options) Regex() (string, bool) {
	opt, ok := o.Find(OptionRegex)
	if !ok {
		return "", false
	}
	return opt.(RegexExtract).Pattern, true
}

// Limit returns the first usable custom amount.
func (o Options) Limit() (int, bool) {
	opt, ok := o.Find(OptionCustomAmount)
	if !ok {
		return 0, false
	}
	return opt.(CustomAmount).Limit()
}

// NextSelector returns the pagination control selector, if any.
func (o Options) NextSelector() (string, bool) {
	opt, ok := o.Find(OptionPagination)
	if !ok {
		return "", false
	}
	return opt.(Pagination).NextSelector, true
}
