package dom

import (
	"sort"

	"golang.org/x/net/html"
)

type EventKind string

const (
	EventMouseMove EventKind = "mousemove"
	EventClick     EventKind = "click"
	EventKeyDown   EventKind = "keydown"
)

// Event is a user interaction on the page. Node is the event target; Key
// is set for keydown events.
type Event struct {
	Kind EventKind
	Node *html.Node
	Key  string
}

type Listener func(Event)

type ListenerID uint64

type registration struct {
	kind EventKind
	fn   Listener
}

// AddListener subscribes fn to events of kind.
func (p *Page) AddListener(kind EventKind, fn Listener) ListenerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.listeners[p.nextID] = registration{kind: kind, fn: fn}
	return p.nextID
}

// RemoveListener unsubscribes a listener. Unknown ids are ignored.
func (p *Page) RemoveListener(id ListenerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, id)
}

// Listeners returns the number of subscribed listeners.
func (p *Page) Listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Dispatch delivers ev to the listeners of its kind in subscription order.
// Listeners run without the page lock held.
func (p *Page) Dispatch(ev Event) {
	p.mu.Lock()
	ids := make([]ListenerID, 0, len(p.listeners))
	for id, reg := range p.listeners {
		if reg.kind == ev.Kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = p.listeners[id].fn
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
