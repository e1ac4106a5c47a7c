package dom

import (
	"sort"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ElementPath returns the element child indices leading from the document
// element to n. The document element itself has an empty path. ok is false
// for nodes that are not elements under the document element.
func ElementPath(n *html.Node) (path []int, ok bool) {
	if n == nil || n.Type != html.ElementNode {
		return nil, false
	}
	for n.Parent != nil && n.Parent.Type != html.DocumentNode {
		i := 0
		for s := n.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode {
				i++
			}
		}
		path = append(path, i)
		n = n.Parent
	}
	if n.Parent == nil {
		return nil, false
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	if path == nil {
		path = []int{}
	}
	return path, true
}

// ElementAt follows path from the document element of doc. It returns nil
// when the path leads nowhere.
func ElementAt(doc *goquery.Document, path []int) *html.Node {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil
	}
	n := documentElement(doc.Nodes[0])
	for _, want := range path {
		if n == nil {
			return nil
		}
		n = nthElement(n, want)
	}
	return n
}

// MarkedPaths returns the element paths of highlighted nodes in document
// order.
func (p *Page) MarkedPaths() [][]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([][]int, 0, len(p.marks))
	for n := range p.marks {
		if path, ok := ElementPath(n); ok {
			paths = append(paths, path)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return lessPath(paths[i], paths[j]) })
	return paths
}

func documentElement(root *html.Node) *html.Node {
	if root.Type != html.DocumentNode {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nthElement(parent *html.Node, want int) *html.Node {
	if want < 0 {
		return nil
	}
	i := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if i == want {
			return c
		}
		i++
	}
	return nil
}

func lessPath(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
