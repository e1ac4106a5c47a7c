package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const indentUnit = "  "

// writer prints indented source lines.
type writer struct {
	b     strings.Builder
	depth int
}

func (w *writer) line(s string) {
	if s == "" {
		w.b.WriteByte('\n')
		return
	}
	w.b.WriteString(strings.Repeat(indentUnit, w.depth))
	w.b.WriteString(s)
	w.b.WriteByte('\n')
}

func (w *writer) linef(format string, args ...any) {
	w.line(fmt.Sprintf(format, args...))
}

func (w *writer) blank() {
	w.line("")
}

// open prints s and indents what follows.
func (w *writer) open(s string) {
	w.line(s)
	w.depth++
}

func (w *writer) openf(format string, args ...any) {
	w.open(fmt.Sprintf(format, args...))
}

// mid prints s one level out, as in "} else {".
func (w *writer) mid(s string) {
	w.depth--
	w.line(s)
	w.depth++
}

func (w *writer) close(s string) {
	w.depth--
	w.line(s)
}

// block prints a multi-line snippet at the current depth.
func (w *writer) block(src string) {
	for _, l := range strings.Split(strings.Trim(src, "\n"), "\n") {
		w.line(l)
	}
}

func (w *writer) String() string {
	return w.b.String()
}

// js renders s as a JavaScript string literal.
func js(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// propertyKey renders an object key, quoting it when needed.
func propertyKey(key string) string {
	if isIdentifier(key) {
		return key
	}
	return js(key)
}
