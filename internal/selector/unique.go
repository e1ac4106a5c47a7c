package selector

import (
	"errors"
	"fmt"
	"strings"
	"tinking/backend/internal/dom"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var ErrNotElement = errors.New("selector: node is not an element of the document")

// stableAttrs are attributes worth anchoring on, most specific first.
var stableAttrs = []string{
	"data-testid", "data-test", "data-qa", "data-id", "name",
	"aria-label", "title", "alt", "role", "type",
}

const (
	maxClasses        = 5
	maxAncestorLevels = 5
)

// Unique returns a short selector matching node and nothing else in doc.
// Ids and stable attributes are preferred over classes, classes over bare
// tags, and a structural :nth-child path is the last resort.
func Unique(doc *goquery.Document, node *html.Node) (string, error) {
	if doc == nil || len(doc.Nodes) == 0 || node == nil || node.Type != html.ElementNode {
		return "", ErrNotElement
	}
	root := doc.Nodes[0]
	if !contains(root, node) {
		return "", ErrNotElement
	}
	switch node.Data {
	case "html", "body", "head":
		return node.Data, nil
	}

	own := candidates(node)
	for _, c := range own {
		if matchesOnly(root, c, node) {
			return c, nil
		}
	}

	level := 0
	for a := node.Parent; a != nil && a.Type == html.ElementNode && level < maxAncestorLevels; a = a.Parent {
		if a.Data == "html" || a.Data == "body" {
			break
		}
		for _, ac := range candidates(a) {
			for _, nc := range own {
				if level == 0 {
					if sel := ac + " > " + nc; matchesOnly(root, sel, node) {
						return sel, nil
					}
				}
				if sel := ac + " " + nc; matchesOnly(root, sel, node) {
					return sel, nil
				}
			}
		}
		level++
	}

	return structuralPath(root, node), nil
}

// candidates lists single-element selectors for node, preferred first.
func candidates(node *html.Node) []string {
	tag := node.Data
	var out []string

	if id, ok := dom.Attr(node, "id"); ok && strings.TrimSpace(id) != "" {
		out = append(out, "#"+Escape(id))
	}
	for _, key := range stableAttrs {
		if v, ok := dom.Attr(node, key); ok && v != "" {
			out = append(out, fmt.Sprintf("%s[%s=%s]", tag, key, quoteAttr(v)))
		}
	}

	classes := Classes(node)
	if len(classes) > maxClasses {
		classes = classes[:maxClasses]
	}
	for _, c := range classes {
		out = append(out, "."+Escape(c))
	}
	for _, c := range classes {
		out = append(out, tag+"."+Escape(c))
	}
	for i := 0; i < len(classes); i++ {
		for j := i + 1; j < len(classes); j++ {
			out = append(out, tag+"."+Escape(classes[i])+"."+Escape(classes[j]))
		}
	}

	out = append(out, tag, nthChild(node))
	return out
}

// structuralPath builds an :nth-child chain from the closest uniquely
// identified ancestor (or the document root) down to node, then drops
// leading links while the chain stays unique.
func structuralPath(root, node *html.Node) string {
	var parts []string
	for n := node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if n.Data == "html" || n.Data == "body" {
			parts = append(parts, n.Data)
			continue
		}
		if id, ok := dom.Attr(n, "id"); ok && id != "" && n != node {
			sel := "#" + Escape(id)
			if matchesOnly(root, sel, n) {
				parts = append(parts, sel)
				break
			}
		}
		parts = append(parts, nthChild(n))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	best := strings.Join(parts, " > ")
	for start := 1; start < len(parts); start++ {
		sel := strings.Join(parts[start:], " > ")
		if !matchesOnly(root, sel, node) {
			break
		}
		best = sel
	}
	return best
}

func nthChild(node *html.Node) string {
	idx := 1
	for s := node.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}
	return fmt.Sprintf("%s:nth-child(%d)", node.Data, idx)
}

func matchesOnly(root *html.Node, sel string, node *html.Node) bool {
	m, err := dom.Compile(sel)
	if err != nil {
		return false
	}
	found := m.MatchAll(root)
	return len(found) == 1 && found[0] == node
}

func contains(root, node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}
