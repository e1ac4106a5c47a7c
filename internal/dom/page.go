package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"tinking/backend/internal/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

const (
	// MarkerClass is added to highlighted elements while the user picks.
	MarkerClass = "crx_mouse_visited"
	// OverlayID is the root of the control panel injected into the page.
	OverlayID = "tinking-root"
	// OverlayAttr flags any other element belonging to the control panel.
	OverlayAttr = "data-tinking-overlay"
)

var ErrInvalidSelector = errors.New("invalid selector")

// Page is the inspected document. Every read and write of the tree goes
// through the page lock.
type Page struct {
	mu        sync.Mutex
	url       *url.URL
	doc       *goquery.Document
	marks     map[*html.Node]bool
	listeners map[ListenerID]registration
	nextID    ListenerID
}

// Parse reads an HTML document served at pageURL.
func Parse(r io.Reader, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	p := &Page{
		doc:       doc,
		marks:     make(map[*html.Node]bool),
		listeners: make(map[ListenerID]registration),
	}
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("dom: parse url: %w", err)
		}
		p.url = u
	}
	p.doc.Url = p.url
	return p, nil
}

func ParseString(src, pageURL string) (*Page, error) {
	return Parse(strings.NewReader(src), pageURL)
}

// URL returns the address the page was loaded from.
func (p *Page) URL() string {
	if p.url == nil {
		return ""
	}
	return p.url.String()
}

// Reload swaps the document for a fresh snapshot. Listeners survive,
// highlight marks belong to the old tree and are dropped.
func (p *Page) Reload(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("dom: reload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	doc.Url = p.url
	p.doc = doc
	p.marks = make(map[*html.Node]bool)
	return nil
}

// Inspect runs fn with exclusive access to the document.
func (p *Page) Inspect(fn func(doc *goquery.Document)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.doc)
}

// Compile parses a CSS selector, wrapping syntax errors in ErrInvalidSelector.
func Compile(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSelector)
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
	}
	return sel, nil
}

// Query returns the nodes matching selector in document order.
func (p *Page) Query(selector string) ([]*html.Node, error) {
	sel, err := Compile(selector)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.FindMatcher(sel).Nodes, nil
}

// Count returns the number of matches for selector.
func (p *Page) Count(selector string) (int, error) {
	nodes, err := p.Query(selector)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// TagName returns the lowercase tag of the first match, or "" when nothing
// matches.
func (p *Page) TagName(selector string) (string, error) {
	nodes, err := p.Query(selector)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return nodes[0].Data, nil
}

// Content previews what the action would extract from the first match:
// flattened text, or the resolved href/src. It returns nil when nothing
// matches or the element lacks the attribute.
func (p *Page) Content(kind ContentKind, selector string) *string {
	nodes, err := p.Query(selector)
	if err != nil || len(nodes) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content(kind, nodes[0])
}

// NodeContent is Content for an already resolved node.
func (p *Page) NodeContent(kind ContentKind, node *html.Node) *string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content(kind, node)
}

func (p *Page) content(kind ContentKind, node *html.Node) *string {
	s := goquery.NewDocumentFromNode(node).Selection
	switch kind {
	case ContentHref, ContentSrc:
		attr := "href"
		if kind == ContentSrc {
			attr = "src"
		}
		v, ok := s.Attr(attr)
		if !ok {
			return nil
		}
		resolved := p.resolve(v)
		return &resolved
	}
	text := FlattenText(s.Text())
	return &text
}

// FlattenText drops line breaks and surrounding blanks the way the
// generated scripts do.
func FlattenText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(s)
}

func (p *Page) resolve(ref string) string {
	base := p.url
	if href, ok := p.doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := url.Parse(href); err == nil {
			if base != nil {
				b = base.ResolveReference(b)
			}
			base = b
		}
	}
	if base == nil {
		return ref
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// ContentKind selects what Content reads from an element.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentHref
	ContentSrc
)

// KindFor maps a step action to the content it previews.
func KindFor(action models.StepAction) ContentKind {
	switch action {
	case models.ActionNavigate, models.ActionExtractHref:
		return ContentHref
	case models.ActionExtractImageSrc:
		return ContentSrc
	}
	return ContentText
}

// InOverlay reports whether node belongs to the injected control panel.
func InOverlay(node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			if (a.Key == "id" && a.Val == OverlayID) || a.Key == OverlayAttr {
				return true
			}
		}
	}
	return false
}

// Closest returns the nearest element named tag starting at node itself.
func Closest(node *html.Node, tag string) *html.Node {
	for n := node; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == tag {
			return n
		}
	}
	return nil
}

// Attr returns the value of an attribute of node.
func Attr(node *html.Node, key string) (string, bool) {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
