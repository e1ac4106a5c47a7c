package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Mark adds MarkerClass to every node. Nodes already marked are skipped.
func (p *Page) Mark(nodes []*html.Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range nodes {
		if n == nil || n.Type != html.ElementNode {
			continue
		}
		if _, done := p.marks[n]; done {
			continue
		}
		class, had := Attr(n, "class")
		p.marks[n] = had
		setClass(n, strings.TrimSpace(class+" "+MarkerClass))
	}
}

// ClearMarks restores every marked node to its unmarked state and returns
// how many nodes were touched.
func (p *Page) ClearMarks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cleared := len(p.marks)
	for n, had := range p.marks {
		class, _ := Attr(n, "class")
		rest := WithoutMarker(strings.Fields(class))
		if len(rest) == 0 && !had {
			removeAttr(n, "class")
			continue
		}
		setClass(n, strings.Join(rest, " "))
	}
	p.marks = make(map[*html.Node]bool)
	return cleared
}

// Marked returns the number of currently highlighted nodes.
func (p *Page) Marked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.marks)
}

// Highlight marks every match of selector, replacing the previous
// highlight. It returns the number of matches.
func (p *Page) Highlight(selector string) (int, error) {
	nodes, err := p.Query(selector)
	if err != nil {
		return 0, err
	}
	p.ClearMarks()
	p.Mark(nodes)
	return len(nodes), nil
}

// WithoutMarker drops the highlight class from a class list.
func WithoutMarker(classes []string) []string {
	out := classes[:0:0]
	for _, c := range classes {
		if c == MarkerClass {
			continue
		}
		out = append(out, c)
	}
	return out
}

func setClass(n *html.Node, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == "class" {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: value})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}
