package compiler

import (
	"fmt"
	"strings"
	"unicode"
)

// reserved holds JavaScript keywords and identifiers the generated script
// declares itself.
var reserved = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true, "do": true, "else": true,
	"enum": true, "export": true, "extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "import": true, "in": true, "instanceof": true, "let": true,
	"new": true, "null": true, "return": true, "static": true, "super": true, "switch": true,
	"this": true, "throw": true, "true": true, "try": true, "typeof": true, "undefined": true,
	"var": true, "void": true, "while": true, "with": true, "yield": true, "arguments": true,
	"eval": true, "async": true, "of": true,

	"browser": true, "page": true, "data": true, "url": true, "urls": true, "record": true,
	"bar": true, "fs": true, "prompts": true, "puppeteer": true, "chromium": true,
	"ProgressBar": true, "outputFilename": true, "promptContinue": true, "response": true,
	"autoScroll": true, "toTitleCase": true, "extractUrls": true, "previousFirstUrl": true,
	"pageUrls": true, "pageIndex": true, "nextNodes": true, "match": true, "value": true,
	"element": true, "index": true, "document": true, "window": true, "console": true,
	"process": true, "require": true, "String": true, "RegExp": true, "Promise": true,
}

// namer hands out script identifiers and output keys that do not collide.
type namer struct {
	idents map[string]bool
	keys   map[string]bool
}

func newNamer() *namer {
	return &namer{idents: make(map[string]bool), keys: make(map[string]bool)}
}

// binding is the set of identifiers one extraction declares.
type binding struct {
	Key       string
	Var       string
	Formatted string
}

func (n *namer) take(name string, idx int) binding {
	base := identifier(name)
	if base == "" || reserved[base] {
		base = fmt.Sprintf("variable%d", idx)
	}
	ident := base
	for i := 2; !n.free(ident); i++ {
		ident = fmt.Sprintf("%s%d", base, i)
	}
	n.idents[ident] = true
	n.idents[formattedName(ident)] = true
	n.idents[extractorName(ident)] = true

	key := name
	if n.keys[key] {
		key = ident
	}
	n.keys[key] = true
	return binding{Key: key, Var: ident, Formatted: formattedName(ident)}
}

func (n *namer) free(ident string) bool {
	return !reserved[ident] && !n.idents[ident] && !n.idents[formattedName(ident)] && !n.idents[extractorName(ident)]
}

func formattedName(ident string) string {
	return "formatted" + upperFirst(ident)
}

func extractorName(ident string) string {
	return "extract" + upperFirst(ident)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// identifier turns a free form name into a camelCase JavaScript identifier.
func identifier(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !(r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(w)
			continue
		}
		b.WriteString(upperFirst(w))
	}
	out := b.String()
	if out != "" && unicode.IsDigit([]rune(out)[0]) {
		out = "_" + out
	}
	return out
}

// isIdentifier reports whether key can be written as a bare property name.
func isIdentifier(key string) bool {
	return key != "" && identifier(key) == key
}
