package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownDriver = errors.New("compiler: unknown driver")

// Driver is the browser automation library a script is generated for.
type Driver string

const (
	Puppeteer  Driver = "puppeteer"
	Playwright Driver = "playwright"
)

// backend holds what differs between the driver flavours. Everything else
// is shared by the renderer.
type backend interface {
	imports() []string
	launch(w *writer, headful bool)
	sleep(ms int64) string
}

var backends = map[Driver]backend{
	Puppeteer:  puppeteerBackend{},
	Playwright: playwrightBackend{},
}

// ParseDriver maps a user supplied name onto a Driver. The empty string
// selects Puppeteer.
func ParseDriver(name string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(name)))
	if d == "" {
		return Puppeteer, nil
	}
	if _, ok := backends[d]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDriver, name)
	}
	return d, nil
}

// Drivers lists the supported drivers.
func Drivers() []Driver {
	out := make([]Driver, 0, len(backends))
	for d := range backends {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type puppeteerBackend struct{}

func (puppeteerBackend) imports() []string {
	return []string{`const puppeteer = require("puppeteer");`}
}

func (puppeteerBackend) launch(w *writer, headful bool) {
	w.open("const browser = await puppeteer.launch({")
	if headful {
		w.line("headless: false,")
	} else {
		w.line("// Uncomment to watch the browser:")
		w.line("// headless: false,")
	}
	w.line("defaultViewport: null,")
	w.line(`args: ["--no-sandbox", "--disable-setuid-sandbox", "--disable-dev-shm-usage"],`)
	w.close("});")
}

func (puppeteerBackend) sleep(ms int64) string {
	return fmt.Sprintf("await new Promise((resolve) => setTimeout(resolve, %d));", ms)
}

type playwrightBackend struct{}

func (playwrightBackend) imports() []string {
	return []string{`const { chromium } = require("playwright");`}
}

func (playwrightBackend) launch(w *writer, headful bool) {
	w.open("const browser = await chromium.launch({")
	if headful {
		w.line("headless: false,")
	} else {
		w.line("// Uncomment to watch the browser:")
		w.line("// headless: false,")
	}
	w.close("});")
}

func (playwrightBackend) sleep(ms int64) string {
	return fmt.Sprintf("await page.waitForTimeout(%d);", ms)
}
