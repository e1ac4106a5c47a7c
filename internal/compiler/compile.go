// Package compiler turns a recipe into a runnable Puppeteer or Playwright
// script.
package compiler

import (
	"strings"
	"time"
	"tinking/backend/internal/models"
)

// Timing holds the delays compiled into scripts.
type Timing struct {
	// RetryDelay separates the two attempts of a single extraction.
	RetryDelay time.Duration
	// PageDelay is the wait after clicking a pagination control.
	PageDelay time.Duration
	// KeyDelay is the per-key delay when replaying typed text.
	KeyDelay time.Duration
	// MaxPages bounds pagination.
	MaxPages int
}

func DefaultTiming() Timing {
	return Timing{
		RetryDelay: 2 * time.Second,
		PageDelay:  4 * time.Second,
		KeyDelay:   100 * time.Millisecond,
		MaxPages:   1000,
	}
}

type Options struct {
	Driver Driver
	// OutputFilename is where the script writes its data. Empty means a
	// timestamped file in the working directory.
	OutputFilename string
	// Headful makes the script open a visible browser window.
	Headful bool
	Timing  Timing
}

func (o Options) timing() Timing {
	t := o.Timing
	d := DefaultTiming()
	if t.RetryDelay <= 0 {
		t.RetryDelay = d.RetryDelay
	}
	if t.PageDelay <= 0 {
		t.PageDelay = d.PageDelay
	}
	if t.KeyDelay <= 0 {
		t.KeyDelay = d.KeyDelay
	}
	if t.MaxPages <= 0 {
		t.MaxPages = d.MaxPages
	}
	return t
}

// Compile validates steps and returns the formatted script. Only a
// structurally invalid recipe or an unknown driver is an error; missing
// selectors or actions degrade to no-ops in the script. A script that does
// not parse is never returned.
func Compile(steps []models.Step, opts Options) (string, error) {
	driver, err := ParseDriver(string(opts.Driver))
	if err != nil {
		return "", err
	}
	prog, err := Lower(steps, opts)
	if err != nil {
		return "", err
	}
	src := Format(render(prog, backends[driver], opts))
	if err := Check(src); err != nil {
		return "", err
	}
	return src, nil
}

// Format normalizes generated source: no trailing blanks, no runs of empty
// lines, one final newline.
func Format(src string) string {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, l)
			continue
		}
		blank = false
		out = append(out, l)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n") + "\n"
}
