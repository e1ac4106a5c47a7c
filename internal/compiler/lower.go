package compiler

import (
	"strings"
	"tinking/backend/internal/models"
)

// LoopStart returns the index of the first step of the loop region: the
// step right after the first Navigate step (past step 0) that selects more
// than one element. Later qualifying steps are compiled as plain steps.
func LoopStart(steps []models.Step) (int, bool) {
	for i := 1; i < len(steps); i++ {
		if steps[i].TotalSelected > 1 && steps[i].Action == models.ActionNavigate {
			return i + 1, true
		}
	}
	return 0, false
}

// Lower validates steps and translates them into a Program.
func Lower(steps []models.Step, opts Options) (*Program, error) {
	if err := models.ValidateSteps(steps); err != nil {
		return nil, err
	}
	p := &Program{
		StartURL:       strings.TrimSpace(models.StartURL(steps)),
		OutputFilename: opts.OutputFilename,
	}
	l := &lowerer{prog: p, names: newNamer()}

	loopAt, hasLoop := LoopStart(steps)
	for i := 1; i < len(steps); i++ {
		if hasLoop && i == loopAt-1 {
			p.Body = append(p.Body, l.loop(steps[i], steps[loopAt:], loopAt))
			break
		}
		stmts, field := l.step(steps[i], i, false)
		p.Body = append(p.Body, stmts...)
		if field != nil {
			p.Collect = append(p.Collect, *field)
		}
	}

	if hasLoop {
		p.Collect = nil
		p.HasData = true
	} else {
		p.HasData = len(p.Collect) > 0
	}
	return p, nil
}

type lowerer struct {
	prog  *Program
	names *namer
}

// step lowers one step. single forces single-element extraction, which is
// how steps inside the loop region behave. The returned field is the
// output entry of an extraction step.
func (l *lowerer) step(step models.Step, idx int, single bool) ([]Stmt, *Field) {
	var out []Stmt
	if step.Action == "" {
		return nil, nil
	}
	if step.Options.Has(models.OptionInfiniteScroll) {
		l.prog.Helpers.AutoScroll = true
		out = append(out, AutoScroll{})
	}

	sel := strings.TrimSpace(step.Selector)
	if sel != "" && step.Action != models.ActionRecord {
		out = append(out, WaitForSelector{Selector: sel})
	}

	switch {
	case step.Action == models.ActionNavigate:
		out = append(out, FollowLink{Selector: sel})
	case step.Action == models.ActionClick:
		if sel != "" {
			out = append(out, Click{Selector: sel})
		}
	case step.Action == models.ActionRecord:
		for _, rec := range step.RecordedClicksAndKeys {
			switch r := rec.(type) {
			case models.MouseClick:
				out = append(out, Click{Selector: r.Selector})
			case models.KeyInput:
				if r.Input != "" {
					out = append(out, TypeText{Text: r.Input})
				}
			}
		}
	case models.IsExtraction(step.Action):
		name := models.VariableName(step, idx)
		b := l.names.take(name, idx)
		ex := Extract{
			Var:       b.Var,
			Formatted: b.Formatted,
			Selector:  sel,
			Prop:      property(step.Action),
			TitleCase: name == "name",
		}
		limit, hasLimit := step.Options.Limit()
		ex.Many = !single && step.TotalSelected > 1 && !(hasLimit && limit == 1)
		if ex.Many && hasLimit {
			ex.Limit = limit
		}
		ex.Retry = !ex.Many && sel != ""
		if pattern, ok := step.Options.Regex(); ok && pattern != "" {
			ex.Regex = pattern
			ex.HasRegex = true
		}
		if ex.TitleCase {
			l.prog.Helpers.TitleCase = true
		}
		out = append(out, ex)
		return out, &Field{Key: b.Key, Value: b.Formatted}
	}
	return out, nil
}

func (l *lowerer) loop(step models.Step, body []models.Step, bodyStart int) Loop {
	lp := Loop{Selector: strings.TrimSpace(step.Selector)}
	if next, ok := step.Options.NextSelector(); ok && strings.TrimSpace(next) != "" {
		lp.Pagination = &Pagination{Next: strings.TrimSpace(next)}
	}
	if n, ok := step.Options.Limit(); ok {
		lp.Limit = n
	}
	if step.Options.Has(models.OptionInfiniteScroll) {
		l.prog.Helpers.AutoScroll = true
		lp.Scroll = true
	}
	for j, s := range body {
		stmts, field := l.step(s, bodyStart+j, true)
		lp.Body = append(lp.Body, stmts...)
		if field != nil {
			lp.Record = append(lp.Record, *field)
		}
	}
	return lp
}

func property(action models.StepAction) Property {
	switch action {
	case models.ActionExtractHref:
		return PropHref
	case models.ActionExtractImageSrc:
		return PropSrc
	}
	return PropText
}
