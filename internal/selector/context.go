// Package selector derives CSS selectors from elements of an inspected page.
package selector

import (
	"strings"
	"tinking/backend/internal/dom"

	"golang.org/x/net/html"
)

// AncestorDepth is how many levels Context climbs to find the scoping
// ancestor.
const AncestorDepth = 3

// Context returns a selector for node that is meant to match it together
// with its visually similar siblings: the fragment of an ancestor up to
// AncestorDepth levels above (never body or html) followed by the node's own
// fragment. Highlight marker classes never contribute, so the result is the
// same whether or not the page is currently highlighted.
func Context(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return ""
	}
	frag := Fragment(node)

	ancestor := node
	climbed := 0
	for climbed < AncestorDepth {
		parent := ancestor.Parent
		if parent == nil || parent.Type != html.ElementNode || parent.Data == "body" || parent.Data == "html" {
			break
		}
		ancestor = parent
		climbed++
	}
	if climbed == 0 {
		return frag
	}
	return Fragment(ancestor) + " " + frag
}

// Fragment renders tag.class1.class2 for node.
func Fragment(node *html.Node) string {
	var b strings.Builder
	b.WriteString(node.Data)
	for _, c := range Classes(node) {
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}
	return b.String()
}

// Classes returns node's class list without highlight markers.
func Classes(node *html.Node) []string {
	class, ok := dom.Attr(node, "class")
	if !ok {
		return nil
	}
	return dom.WithoutMarker(strings.Fields(class))
}
