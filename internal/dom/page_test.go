package dom

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const shopHTML = `<html><head><title>Shop</title></head><body>
<div class="list">
  <a class="item" href="/p/1"><span class="name">Red
  shoe</span></a>
  <a class="item" href="/p/2"><span class="name">Blue shoe</span></a>
  <a href="https://other.example.org/x">elsewhere</a>
</div>
<img id="logo" src="img/logo.png">
<p>plain</p>
<div id="tinking-root"><button class="item">panel</button></div>
</body></html>`

func newShop(t *testing.T) *Page {
	t.Helper()
	p, err := ParseString(shopHTML, "https://shop.example.com/list/index.html")
	require.NoError(t, err)
	return p
}

func renderHTML(t *testing.T, p *Page) string {
	t.Helper()
	var out string
	p.Inspect(func(doc *goquery.Document) {
		var err error
		out, err = doc.Html()
		require.NoError(t, err)
	})
	return out
}

func TestQuery(t *testing.T) {
	p := newShop(t)

	n, err := p.Count("div.list a.item")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = p.Query("div[[")
	assert.ErrorIs(t, err, ErrInvalidSelector)

	_, err = p.Query("  ")
	assert.ErrorIs(t, err, ErrInvalidSelector)
}

func TestContent(t *testing.T) {
	p := newShop(t)

	text := p.Content(ContentText, "a.item span.name")
	require.NotNil(t, text)
	assert.Equal(t, "Red  shoe", *text)

	href := p.Content(ContentHref, "a.item")
	require.NotNil(t, href)
	assert.Equal(t, "https://shop.example.com/p/1", *href)

	src := p.Content(ContentSrc, "#logo")
	require.NotNil(t, src)
	assert.Equal(t, "https://shop.example.com/list/img/logo.png", *src)

	assert.Nil(t, p.Content(ContentSrc, "p"))
	assert.Nil(t, p.Content(ContentText, "table"))
	assert.Nil(t, p.Content(ContentText, "::"))
}

func TestMarksLeaveNoResidue(t *testing.T) {
	p := newShop(t)
	before := renderHTML(t, p)

	nodes, err := p.Query("a, img, p")
	require.NoError(t, err)
	p.Mark(nodes)
	p.Mark(nodes)
	assert.Equal(t, 5, p.Marked())
	assert.Contains(t, renderHTML(t, p), `class="item crx_mouse_visited"`)
	assert.Contains(t, renderHTML(t, p), `<p class="crx_mouse_visited">`)

	assert.Equal(t, 5, p.ClearMarks())
	assert.Equal(t, 0, p.Marked())
	assert.Equal(t, before, renderHTML(t, p))
}

func TestHighlightReplacesPrevious(t *testing.T) {
	p := newShop(t)

	n, err := p.Highlight("a.item")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.Highlight("p")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, p.Marked())
	assert.NotContains(t, renderHTML(t, p), "item crx_mouse_visited")
}

func TestInOverlay(t *testing.T) {
	p := newShop(t)

	panel, err := p.Query("#tinking-root button")
	require.NoError(t, err)
	require.Len(t, panel, 1)
	assert.True(t, InOverlay(panel[0]))

	items, err := p.Query("a.item")
	require.NoError(t, err)
	assert.False(t, InOverlay(items[0]))
}

func TestClosest(t *testing.T) {
	p := newShop(t)
	spans, err := p.Query("span.name")
	require.NoError(t, err)

	a := Closest(spans[0], "a")
	require.NotNil(t, a)
	href, _ := Attr(a, "href")
	assert.Equal(t, "/p/1", href)
	assert.Nil(t, Closest(spans[0], "img"))
}

func TestDispatchOrderAndRemoval(t *testing.T) {
	p := newShop(t)
	var got []string

	first := p.AddListener(EventClick, func(ev Event) { got = append(got, "first") })
	p.AddListener(EventClick, func(ev Event) { got = append(got, "second") })
	p.AddListener(EventMouseMove, func(ev Event) { got = append(got, "move") })
	assert.Equal(t, 3, p.Listeners())

	p.Dispatch(Event{Kind: EventClick, Node: &html.Node{}})
	assert.Equal(t, []string{"first", "second"}, got)

	p.RemoveListener(first)
	got = nil
	p.Dispatch(Event{Kind: EventClick})
	assert.Equal(t, []string{"second"}, got)
}

func TestReloadDropsMarks(t *testing.T) {
	p := newShop(t)
	_, err := p.Highlight("a.item")
	require.NoError(t, err)
	p.AddListener(EventClick, func(Event) {})

	require.NoError(t, p.Reload(strings.NewReader(`<html><body><p class="x">new</p></body></html>`)))
	assert.Equal(t, 0, p.Marked())
	assert.Equal(t, 1, p.Listeners())

	n, err := p.Count("p.x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
